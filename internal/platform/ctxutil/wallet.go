package ctxutil

import "context"

type walletKey struct{}

// WalletData identifies the authenticated wallet for a request.
type WalletData struct {
	Address string
	// Source is "jwt" or "header".
	Source string
}

func WithWallet(ctx context.Context, wd *WalletData) context.Context {
	return context.WithValue(ctx, walletKey{}, wd)
}

func GetWallet(ctx context.Context) *WalletData {
	if ctx == nil {
		return nil
	}
	if wd, ok := ctx.Value(walletKey{}).(*WalletData); ok {
		return wd
	}
	return nil
}

// WalletAddress returns the authenticated address or "".
func WalletAddress(ctx context.Context) string {
	if wd := GetWallet(ctx); wd != nil {
		return wd.Address
	}
	return ""
}
