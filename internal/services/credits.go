package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/domain/wallet"
	"github.com/yungbote/ghiblify-backend/internal/journal"
	"github.com/yungbote/ghiblify-backend/internal/observability"
	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

const (
	MsgNeedCredits = "You need credits to create magical art ✨ Add credits to continue transforming your images!"

	BulkAdd = "add"
	BulkSet = "set"
	BulkGet = "get"
)

// AdminResult is returned by every admin ledger operation.
type AdminResult struct {
	Address       string `json:"address"`
	OldBalance    *int64 `json:"old_balance,omitempty"`
	NewBalance    *int64 `json:"new_balance,omitempty"`
	AmountAdded   *int64 `json:"amount_added,omitempty"`
	AmountChanged *int64 `json:"amount_changed,omitempty"`
	Credits       *int64 `json:"credits,omitempty"`
	Operation     string `json:"operation"`
	Context       string `json:"context,omitempty"`
	Status        string `json:"status,omitempty"`
	Error         string `json:"error,omitempty"`
}

type BulkOp struct {
	Address   string `json:"address"`
	Operation string `json:"operation"`
	Amount    int64  `json:"amount"`
}

type CreditsService interface {
	Balance(ctx context.Context, address string) (int64, error)
	Ensure(ctx context.Context, address string) (int64, error)
	// SpendForAPI takes one credit before a paid call to api.
	SpendForAPI(ctx context.Context, address, api string) (int64, error)
	Use(ctx context.Context, address string, amount int64) (wallet.Change, error)
	// Refund returns one credit and never fails; on error it logs and reports
	// the balance it could read.
	Refund(ctx context.Context, address, api string) int64
	AdminAdd(ctx context.Context, address string, amount int64, reason string) (*AdminResult, error)
	AdminSet(ctx context.Context, address string, amount int64, reason string) (*AdminResult, error)
	AdminGet(ctx context.Context, address string) (*AdminResult, error)
	Bulk(ctx context.Context, ops []BulkOp, reason string) []AdminResult
	Journal(ctx context.Context, address string, limit int) ([]payments.LedgerEntry, error)
}

type creditsService struct {
	log     *logger.Logger
	store   store.Store
	journal *journal.Journal
}

func NewCreditsService(log *logger.Logger, st store.Store, j *journal.Journal) CreditsService {
	return &creditsService{
		log:     log.With("service", "CreditsService"),
		store:   st,
		journal: j,
	}
}

// ValidateAddress normalizes a wallet address or returns a 400.
func ValidateAddress(address string) (string, error) {
	if !wallet.Valid(address) {
		return "", apierr.BadRequest("invalid_address", "Invalid Ethereum address format")
	}
	return wallet.Normalize(address), nil
}

func (s *creditsService) Balance(ctx context.Context, address string) (int64, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return 0, err
	}
	return s.store.Balance(ctx, addr)
}

func (s *creditsService) Ensure(ctx context.Context, address string) (int64, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return 0, err
	}
	return s.store.Ensure(ctx, addr)
}

func (s *creditsService) SpendForAPI(ctx context.Context, address, api string) (int64, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return 0, err
	}
	change, err := s.store.Spend(journal.WithReason(ctx, "spend:"+apiName(api)), addr, 1)
	if errors.Is(err, store.ErrInsufficientCredits) {
		observability.Current().IncLedger("spend", "insufficient")
		s.log.Warn("Insufficient credits", "api", apiName(api), "address", addr)
		return 0, apierr.WithMessage(http.StatusPaymentRequired, "insufficient_credits", MsgNeedCredits, err)
	}
	if err != nil {
		return 0, fmt.Errorf("spend credit: %w", err)
	}
	observability.Current().IncLedger("spend", "ok")
	s.log.Info("Spent credit", "api", apiName(api), "address", addr, "balance", change.NewBalance)
	return change.NewBalance, nil
}

func (s *creditsService) Use(ctx context.Context, address string, amount int64) (wallet.Change, error) {
	if amount <= 0 {
		return wallet.Change{}, apierr.BadRequest("invalid_amount", "Amount must be positive")
	}
	addr, err := ValidateAddress(address)
	if err != nil {
		return wallet.Change{}, err
	}
	change, err := s.store.Spend(journal.WithReason(ctx, "use"), addr, amount)
	if errors.Is(err, store.ErrInsufficientCredits) {
		bal, _ := s.store.Balance(ctx, addr)
		return wallet.Change{}, apierr.WithMessage(http.StatusPaymentRequired, "insufficient_credits",
			fmt.Sprintf("Insufficient credits. Required: %d, Available: %d", amount, bal), err)
	}
	if err != nil {
		return wallet.Change{}, fmt.Errorf("use credits: %w", err)
	}
	return change, nil
}

func (s *creditsService) Refund(ctx context.Context, address, api string) int64 {
	addr := wallet.Normalize(address)
	// the caller's request may already be cancelled by the failure being refunded
	ctx = journal.WithReason(context.WithoutCancel(ctx), "refund:"+apiName(api))
	change, err := s.store.Add(ctx, addr, 1)
	if err != nil {
		observability.Current().IncLedger("refund", "error")
		s.log.Error("Refund failed", "api", apiName(api), "address", addr, "error", err)
		bal, _ := s.store.Balance(ctx, addr)
		return bal
	}
	observability.Current().IncLedger("refund", "ok")
	s.log.Info("Refunded credit", "api", apiName(api), "address", addr, "balance", change.NewBalance)
	return change.NewBalance
}

func (s *creditsService) AdminAdd(ctx context.Context, address string, amount int64, reason string) (*AdminResult, error) {
	if amount <= 0 {
		return nil, apierr.BadRequest("invalid_amount", "Amount must be positive")
	}
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	reason = adminReason(reason)
	change, err := s.store.Add(journal.WithReason(ctx, "admin:"+reason), addr, amount)
	if err != nil {
		return nil, fmt.Errorf("add credits: %w", err)
	}
	s.log.Info("Admin added credits", "context", reason, "address", addr, "old", change.OldBalance, "new", change.NewBalance)
	return &AdminResult{
		Address:     addr,
		OldBalance:  &change.OldBalance,
		NewBalance:  &change.NewBalance,
		AmountAdded: &amount,
		Operation:   "add_credits",
		Context:     reason,
	}, nil
}

func (s *creditsService) AdminSet(ctx context.Context, address string, amount int64, reason string) (*AdminResult, error) {
	if amount < 0 {
		return nil, apierr.BadRequest("invalid_amount", "Amount must not be negative")
	}
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	reason = adminReason(reason)
	change, err := s.store.SetBalance(journal.WithReason(ctx, "admin:"+reason), addr, amount)
	if err != nil {
		return nil, fmt.Errorf("set credits: %w", err)
	}
	delta := change.Delta()
	s.log.Info("Admin set credits", "context", reason, "address", addr, "old", change.OldBalance, "new", change.NewBalance)
	return &AdminResult{
		Address:       addr,
		OldBalance:    &change.OldBalance,
		NewBalance:    &change.NewBalance,
		AmountChanged: &delta,
		Operation:     "set_credits",
		Context:       reason,
	}, nil
}

func (s *creditsService) AdminGet(ctx context.Context, address string) (*AdminResult, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	credits, err := s.store.Balance(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("get credits: %w", err)
	}
	return &AdminResult{
		Address:   addr,
		Credits:   &credits,
		Operation: "get_credits",
		Status:    wallet.Status(credits),
	}, nil
}

func (s *creditsService) Bulk(ctx context.Context, ops []BulkOp, reason string) []AdminResult {
	reason = adminReason(reason)
	out := make([]AdminResult, 0, len(ops))
	for _, op := range ops {
		var (
			res *AdminResult
			err error
		)
		switch strings.ToLower(strings.TrimSpace(op.Operation)) {
		case BulkAdd:
			res, err = s.AdminAdd(ctx, op.Address, op.Amount, reason)
		case BulkSet:
			res, err = s.AdminSet(ctx, op.Address, op.Amount, reason)
		case BulkGet:
			res, err = s.AdminGet(ctx, op.Address)
		default:
			err = fmt.Errorf("Unknown operation: %s", op.Operation)
		}
		if err != nil {
			s.log.Warn("Bulk credit operation failed", "context", reason, "address", op.Address, "operation", op.Operation, "error", err)
			out = append(out, AdminResult{Address: op.Address, Operation: op.Operation, Error: err.Error()})
			continue
		}
		out = append(out, *res)
	}
	s.log.Info("Bulk credit operation done", "context", reason, "count", len(out))
	return out
}

func (s *creditsService) Journal(ctx context.Context, address string, limit int) ([]payments.LedgerEntry, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	rows, err := s.journal.ForAddress(ctx, addr, limit)
	if errors.Is(err, journal.ErrDisabled) {
		return nil, apierr.New(http.StatusServiceUnavailable, "journal_disabled", err)
	}
	return rows, err
}

func adminReason(reason string) string {
	if reason = strings.TrimSpace(reason); reason == "" {
		return "Admin"
	}
	return reason
}

func apiName(api string) string {
	if api = strings.TrimSpace(api); api == "" {
		return "API"
	}
	return api
}

// FriendlyError turns a provider failure into copy safe to show users. Every
// message assumes the spent credit was refunded.
func FriendlyError(err error, api string) string {
	msg := ""
	if err != nil {
		msg = strings.ToLower(err.Error())
	}
	api = apiName(api)
	has := func(parts ...string) bool {
		for _, p := range parts {
			if strings.Contains(msg, p) {
				return true
			}
		}
		return false
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || has("timeout", "timed out"):
		return "The request took too long to process. Your credit has been refunded - please try again."
	case has("network", "connection"):
		return "We're having connectivity issues. Your credit has been refunded - please try again shortly."
	case has("invalid") && has("image"):
		return "There was an issue with your image format. Your credit has been refunded - please try uploading a different image."
	case has("api key", "unauthorized"):
		return fmt.Sprintf("Our %s service is temporarily unavailable. Your credit has been refunded - please try again later.", api)
	}
	switch strings.ToLower(api) {
	case "replicate":
		switch {
		case has("out of memory"):
			return "Our servers are currently at capacity. Your credit has been refunded - please try again in a few minutes."
		case has("rate limit", "quota"):
			return "We've hit our processing limit. Your credit has been refunded - please try again in a few minutes."
		}
		return "We're experiencing high demand right now. Your credit has been refunded and you can try again in a few moments."
	case "comfyui":
		switch {
		case has("imgbb"):
			return "There was an issue uploading your image. Your credit has been refunded - please try again."
		case has("workflow"):
			return "Our processing pipeline is experiencing issues. Your credit has been refunded - please try again in a few minutes."
		}
		return "We're experiencing technical difficulties. Your credit has been refunded and you can try again in a few moments."
	}
	return fmt.Sprintf("We're experiencing technical difficulties with %s. Your credit has been refunded and you can try again in a few moments.", api)
}
