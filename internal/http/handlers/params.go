package handlers

import (
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ghiblify-backend/internal/platform/ctxutil"
)

var errMissingAmount = errors.New("amount is required")

// walletParams is the loose address/amount shape older clients send either as
// query parameters or as a JSON body.
type walletParams struct {
	Address  string `form:"address" json:"address"`
	Amount   *int64 `form:"amount" json:"amount"`
	Provider string `form:"provider" json:"provider"`
	Reason   string `form:"reason" json:"reason"`
}

func (p walletParams) amountOr(def int64) int64 {
	if p.Amount == nil {
		return def
	}
	return *p.Amount
}

// bindParams fills dst from the query string, then from a JSON body if present.
func bindParams(c *gin.Context, dst any) error {
	if err := c.ShouldBindQuery(dst); err != nil {
		return err
	}
	if c.Request.ContentLength == 0 || !strings.Contains(c.ContentType(), "json") {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// walletAddress is the wallet resolved by middleware.RequireWallet.
func walletAddress(c *gin.Context) string {
	return ctxutil.WalletAddress(c.Request.Context())
}

// addressOr prefers the authenticated wallet over a client supplied address.
func addressOr(c *gin.Context, fallback string) string {
	if addr := walletAddress(c); addr != "" {
		return addr
	}
	return strings.TrimSpace(fallback)
}
