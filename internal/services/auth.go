package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/ghiblify-backend/internal/domain/wallet"
	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/evm"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

const (
	DefaultNonceTTL  = 15 * time.Minute
	DefaultAccessTTL = 24 * time.Hour
)

type JWTClaims struct {
	jwt.RegisteredClaims
}

// SignatureVerifier validates contract wallet signatures on chain.
type SignatureVerifier interface {
	Verify(ctx context.Context, signer common.Address, message string, sig []byte) (bool, error)
}

type AuthConfig struct {
	JWTSecret string
	AccessTTL time.Duration
	NonceTTL  time.Duration
	// TrustSmartWallets accepts wrapped smart wallet signatures without an
	// on-chain check when no verifier is configured.
	TrustSmartWallets bool
}

type VerifyRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type VerifyResult struct {
	OK        bool   `json:"ok"`
	Address   string `json:"address"`
	Credits   int64  `json:"credits"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type AuthService interface {
	Nonce(ctx context.Context) (string, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
	// Login ensures the wallet exists without a signature. Kept for older clients.
	Login(ctx context.Context, address string) (string, int64, error)
	IssueToken(address string) (string, error)
	// AddressFromToken validates a session token and returns its wallet.
	AddressFromToken(token string) (string, error)
	GetAccessTTL() time.Duration
}

type authService struct {
	log      *logger.Logger
	store    store.Store
	verifier SignatureVerifier
	cfg      AuthConfig
	now      func() time.Time
}

func NewAuthService(log *logger.Logger, st store.Store, verifier SignatureVerifier, cfg AuthConfig) (AuthService, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = DefaultNonceTTL
	}
	return &authService{
		log:      log.With("service", "AuthService"),
		store:    st,
		verifier: verifier,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

func (as *authService) GetAccessTTL() time.Duration { return as.cfg.AccessTTL }

func (as *authService) Nonce(ctx context.Context) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)
	if err := as.store.PutNonce(ctx, nonce, as.cfg.NonceTTL); err != nil {
		as.log.Error("Nonce store failed", "error", err)
		return "", apierr.WithMessage(http.StatusInternalServerError, "nonce_failed", "Failed to generate nonce", err)
	}
	return nonce, nil
}

func (as *authService) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if !wallet.Valid(req.Address) {
		return nil, apierr.BadRequest("invalid_address", "Invalid Ethereum address format")
	}
	address := wallet.Normalize(req.Address)

	msg, err := evm.ParseSIWE(req.Message)
	if err != nil || msg.Nonce == "" {
		as.log.Warn("SIWE message without nonce", "address", address)
		return nil, apierr.Unprocessable("invalid_siwe", "Invalid SIWE message format - no nonce found")
	}
	if msg.Address != "" && !evm.SameAddress(msg.Address, address) {
		as.log.Warn("SIWE address mismatch", "message_address", msg.Address, "address", address)
		return nil, apierr.Unprocessable("address_mismatch", "Address mismatch")
	}

	sig, err := evm.DecodeSignature(req.Signature)
	if err != nil {
		return nil, apierr.Unauthorized("invalid_signature", "Invalid signature")
	}

	if evm.IsSmartWalletSignature(req.Signature) {
		if err := as.verifySmartWallet(ctx, address, req.Message, sig, msg.Nonce); err != nil {
			return nil, err
		}
	} else {
		ok, err := as.store.ConsumeNonce(ctx, msg.Nonce)
		if err != nil {
			return nil, fmt.Errorf("consume nonce: %w", err)
		}
		if !ok {
			as.log.Warn("Unknown or expired nonce", "address", address)
			return nil, apierr.Unprocessable("invalid_nonce", "Invalid or expired nonce")
		}
		signer, err := evm.RecoverPersonal(req.Message, sig)
		if err != nil || !evm.SameAddress(signer.Hex(), address) {
			as.log.Warn("Signature does not match address", "address", address)
			return nil, apierr.Unauthorized("invalid_signature", "Invalid signature")
		}
	}

	if _, err := as.store.Ensure(ctx, address); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	credits, err := as.store.Balance(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	token, err := as.IssueToken(address)
	if err != nil {
		return nil, err
	}
	as.log.Info("Wallet authenticated", "address", address, "chain_id", msg.ChainID)
	return &VerifyResult{
		OK:        true,
		Address:   address,
		Credits:   credits,
		Token:     token,
		ExpiresIn: int(as.cfg.AccessTTL.Seconds()),
	}, nil
}

// verifySmartWallet handles signatures from wallets that generate their own
// nonces; the nonce is claimed so the same message cannot be replayed.
func (as *authService) verifySmartWallet(ctx context.Context, address, message string, sig []byte, nonce string) error {
	switch {
	case as.verifier != nil:
		ok, err := as.verifier.Verify(ctx, common.HexToAddress(address), message, sig)
		if errors.Is(err, evm.ErrUnsupportedWrapped) && as.cfg.TrustSmartWallets {
			as.log.Warn("Trusting wrapped smart wallet signature", "address", address)
			break
		}
		if err != nil {
			as.log.Warn("Smart wallet verification failed", "address", address, "error", err)
			return apierr.Unauthorized("invalid_signature", "Invalid signature")
		}
		if !ok {
			return apierr.Unauthorized("invalid_signature", "Invalid signature")
		}
	case as.cfg.TrustSmartWallets:
		as.log.Warn("Trusting smart wallet signature without verifier", "address", address)
	default:
		return apierr.Unauthorized("invalid_signature", "Smart wallet signatures are not supported")
	}
	claimed, err := as.store.ClaimNonce(ctx, nonce, as.cfg.NonceTTL)
	if err != nil {
		return fmt.Errorf("claim nonce: %w", err)
	}
	if !claimed {
		as.log.Warn("Smart wallet nonce replayed", "address", address)
		return apierr.Unprocessable("invalid_nonce", "Invalid or expired nonce")
	}
	return nil
}

func (as *authService) Login(ctx context.Context, address string) (string, int64, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return "", 0, err
	}
	credits, err := as.store.Ensure(ctx, addr)
	if err != nil {
		return "", 0, fmt.Errorf("ensure user: %w", err)
	}
	return addr, credits, nil
}

func (as *authService) IssueToken(address string) (string, error) {
	now := as.now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   wallet.Normalize(address),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(as.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (as *authService) AddressFromToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.New("missing token")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(as.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("Failed to parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("Invalid or expired JWT token")
	}
	if !wallet.Valid(claims.Subject) {
		return "", errors.New("Invalid wallet in token")
	}
	return wallet.Normalize(claims.Subject), nil
}
