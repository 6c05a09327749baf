package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ghiblify-backend/internal/domain/wallet"
	"github.com/yungbote/ghiblify-backend/internal/platform/ctxutil"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/services"
)

const (
	headerWalletAddress = "X-Wallet-Address"
	headerAdminKey      = "X-Admin-Key"
	headerAPIKey        = "X-API-Key"
)

type AuthMiddlewareConfig struct {
	// AllowHeaderWallet trusts X-Wallet-Address when no bearer token is sent.
	AllowHeaderWallet bool
	AdminKey          string
	APIKey            string
}

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
	cfg         AuthMiddlewareConfig
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService, cfg AuthMiddlewareConfig) *AuthMiddleware {
	middlewareLogger := log.With("Middleware", "AuthMiddleware")
	return &AuthMiddleware{log: middlewareLogger, authService: authService, cfg: cfg}
}

// RequireWallet resolves the caller's wallet from a session token and stores it
// in the request context.
func (am *AuthMiddleware) RequireWallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		wd, ok := am.resolveWallet(c)
		if !ok {
			return
		}
		ctx := ctxutil.WithWallet(c.Request.Context(), wd)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// OptionalWallet behaves like RequireWallet when credentials are sent and
// passes anonymous requests through untouched.
func (am *AuthMiddleware) OptionalWallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		hasHeader := am.cfg.AllowHeaderWallet && strings.TrimSpace(c.GetHeader(headerWalletAddress)) != ""
		if extractBearer(c) == "" && !hasHeader {
			c.Next()
			return
		}
		wd, ok := am.resolveWallet(c)
		if !ok {
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithWallet(c.Request.Context(), wd))
		c.Next()
	}
}

func (am *AuthMiddleware) resolveWallet(c *gin.Context) (*ctxutil.WalletData, bool) {
	if tokenString := extractBearer(c); tokenString != "" {
		address, err := am.authService.AddressFromToken(tokenString)
		if err != nil {
			am.log.Debug("Rejected session token", "error", err)
			abort(c, http.StatusUnauthorized, "invalid_token", "Invalid or expired session token")
			return nil, false
		}
		return &ctxutil.WalletData{Address: address, Source: "jwt"}, true
	}
	if am.cfg.AllowHeaderWallet {
		if h := strings.TrimSpace(c.GetHeader(headerWalletAddress)); h != "" {
			if !wallet.Valid(h) {
				abort(c, http.StatusBadRequest, "invalid_address", "Invalid Ethereum address format")
				return nil, false
			}
			return &ctxutil.WalletData{Address: wallet.Normalize(h), Source: "header"}, true
		}
	}
	abort(c, http.StatusUnauthorized, "unauthorized", "No wallet address provided")
	return nil, false
}

func (am *AuthMiddleware) RequireAdminKey() gin.HandlerFunc {
	return requireKey(am.log, headerAdminKey, am.cfg.AdminKey, http.StatusForbidden, "Admin access required")
}

func (am *AuthMiddleware) RequireAPIKey() gin.HandlerFunc {
	return requireKey(am.log, headerAPIKey, am.cfg.APIKey, http.StatusUnauthorized, "Invalid or missing API key")
}

// requireKey rejects every request while expected is empty.
func requireKey(log *logger.Logger, header, expected string, deniedStatus int, denied string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			log.Warn("Key protected route called without a configured key", "header", header, "path", c.FullPath())
			abort(c, http.StatusServiceUnavailable, "not_configured", "This endpoint is not configured")
			return
		}
		got := strings.TrimSpace(c.GetHeader(header))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			abort(c, deniedStatus, "forbidden", denied)
			return
		}
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{"message": msg, "code": code},
	})
}
