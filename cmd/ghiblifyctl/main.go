package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/ghiblify-backend/internal/app"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "ghiblifyctl",
		Short:         "Operator tools for the Ghiblify credit ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(creditsCmd())
	rootCmd.AddCommand(celoCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp builds the same services the server uses and tears them down after fn.
func withApp(fn func(ctx context.Context, a *app.App) (any, error)) error {
	a, err := app.New()
	if err != nil {
		return err
	}
	defer a.Close()
	out, err := fn(context.Background(), a)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func parseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount must be an integer: %q", s)
	}
	return n, nil
}

func creditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect or change wallet balances",
	}
	var reason string

	get := &cobra.Command{
		Use:   "get <address>",
		Short: "Print a wallet balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) (any, error) {
				return a.Services.Credits.AdminGet(ctx, args[0])
			})
		},
	}

	add := &cobra.Command{
		Use:   "add <address> <amount>",
		Short: "Add credits to a wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app.App) (any, error) {
				return a.Services.Credits.AdminAdd(ctx, args[0], amount, reason)
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <address> <amount>",
		Short: "Overwrite a wallet balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app.App) (any, error) {
				return a.Services.Credits.AdminSet(ctx, args[0], amount, reason)
			})
		},
	}

	var limit int
	journal := &cobra.Command{
		Use:   "journal <address>",
		Short: "Show recent ledger mutations for a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) (any, error) {
				return a.Services.Credits.Journal(ctx, args[0], limit)
			})
		},
	}
	journal.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries")

	for _, c := range []*cobra.Command{add, set} {
		c.Flags().StringVarP(&reason, "reason", "r", "cli", "Reason recorded in the journal")
	}
	cmd.AddCommand(get, add, set, journal)
	return cmd
}

func celoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "celo",
		Short: "CELO payment maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Scan new CreditsPurchased events once and credit them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) (any, error) {
				return a.Services.Celo.ProcessPendingEvents(ctx)
			})
		},
	})
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ledger storage status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) (any, error) {
				return a.Services.Store.Status(ctx), nil
			})
		},
	}
}
