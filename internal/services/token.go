package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/domain/wallet"
	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/evm"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/pricing"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

const (
	DefaultTokenPaymentsContract = "0x41f2fA6E60A34c26BD2C467d21EcB0a2f9087B03"

	TokenStatusConfirmedNotProcessed = "confirmed_not_processed"
)

type TokenPaymentRequest struct {
	TransactionHash string      `json:"transactionHash"`
	UserAddress     string      `json:"userAddress"`
	Tier            string      `json:"tier"`
	TokenAmount     json.Number `json:"tokenAmount"`
	USDAmount       json.Number `json:"usdAmount"`
	Discount        any         `json:"discount"`
	BlockNumber     json.Number `json:"blockNumber"`
	Timestamp       any         `json:"timestamp"`
}

type TokenPaymentCheck struct {
	Status  string `json:"status"`
	Credits *int64 `json:"credits,omitempty"`
}

type TokenPaymentService interface {
	ProcessPayment(ctx context.Context, req TokenPaymentRequest) (*PurchaseResult, error)
	CheckPayment(ctx context.Context, txHash, address string) (*TokenPaymentCheck, error)
	History(ctx context.Context, address string) ([]payments.Record, error)
	Pricing() map[pricing.Tier]pricing.TableEntry
}

type tokenPaymentService struct {
	log      *logger.Logger
	store    store.Store
	chain    evm.ChainReader
	contract common.Address
}

func NewTokenPaymentService(log *logger.Logger, st store.Store, chain evm.ChainReader, contract string) (TokenPaymentService, error) {
	if strings.TrimSpace(contract) == "" {
		contract = DefaultTokenPaymentsContract
	}
	addr, err := evm.ParseAddress(contract)
	if err != nil {
		return nil, fmt.Errorf("token payments contract: %w", err)
	}
	return &tokenPaymentService{
		log:      log.With("service", "TokenPaymentService"),
		store:    st,
		chain:    chain,
		contract: addr,
	}, nil
}

// Pricing lists credits per tier; the token price itself comes from the contract.
func (s *tokenPaymentService) Pricing() map[pricing.Tier]pricing.TableEntry {
	return pricing.CreditsTable()
}

func (s *tokenPaymentService) ProcessPayment(ctx context.Context, req TokenPaymentRequest) (*PurchaseResult, error) {
	if req.TransactionHash == "" || req.UserAddress == "" || req.Tier == "" || req.TokenAmount == "" {
		return nil, apierr.BadRequest("missing_fields", "Missing required payment data")
	}
	tier, ok := pricing.ParseTier(req.Tier)
	// the contract alias is accepted in events, not from clients
	if !ok || string(tier) != strings.ToLower(strings.TrimSpace(req.Tier)) {
		return nil, apierr.BadRequest("invalid_tier", "Invalid tier: %s", req.Tier)
	}
	if !wallet.Valid(req.UserAddress) {
		return nil, apierr.BadRequest("invalid_address", "Invalid Ethereum address format")
	}
	user := wallet.Normalize(req.UserAddress)
	hash, err := evm.ParseTxHash(req.TransactionHash)
	if err != nil {
		return nil, apierr.BadRequest("invalid_tx_hash", "%v", err)
	}
	txHex := hash.Hex()
	s.log.Info("Processing token payment", "tx_hash", txHex, "address", user)

	if m, err := s.store.Processed(ctx, store.TokenTxKey(txHex)); err != nil {
		return nil, fmt.Errorf("read tx marker: %w", err)
	} else if m != nil {
		return &PurchaseResult{Status: StatusAlreadyProcessed, TransactionHash: txHex}, nil
	}
	if s.chain == nil {
		return nil, apierr.Newf(http.StatusServiceUnavailable, "base_unavailable", "Base RPC is not configured")
	}

	receipt, err := s.chain.TransactionReceipt(ctx, hash)
	if err != nil || receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		s.log.Warn("Token payment tx not confirmed", "tx_hash", txHex, "error", err)
		return nil, apierr.BadRequest("tx_failed", "Transaction failed or not found")
	}
	tx, _, err := s.chain.TransactionByHash(ctx, hash)
	if err != nil || tx == nil || tx.To() == nil || *tx.To() != s.contract {
		return nil, apierr.BadRequest("wrong_contract", "Transaction not to GHIBLIFY payments contract")
	}
	ev, err := evm.FindCreditsPurchased(receipt, s.contract)
	if errors.Is(err, evm.ErrNoCreditsPurchase) {
		return nil, apierr.BadRequest("no_events", "No purchase events found in transaction")
	}
	if err != nil {
		return nil, apierr.BadRequest("bad_event", "Failed to verify transaction: %v", err)
	}
	if !evm.SameAddress(ev.Buyer.Hex(), user) {
		return nil, apierr.BadRequest("buyer_mismatch", "Transaction buyer does not match provided address")
	}
	if eventTier, ok := pricing.ParseTier(ev.PackageTier); !ok || eventTier != tier {
		return nil, apierr.BadRequest("tier_mismatch", "Transaction tier %s does not match provided tier %s", ev.PackageTier, req.Tier)
	}
	if ev.Credits == nil || !ev.Credits.IsInt64() || ev.Credits.Sign() <= 0 {
		return nil, apierr.BadRequest("bad_event", "Transaction carries no credits")
	}
	credits := ev.Credits.Int64()

	usd, _ := req.USDAmount.Float64()
	res, err := grantPurchase(ctx, s.log, s.store, store.TokenTxKey(txHex), user, credits, payments.Record{
		Method:      payments.MethodGhiblifyToken,
		TxHash:      txHex,
		Tier:        string(tier),
		Amount:      usd,
		Discount:    discountRate(req.Discount),
		TokenAmount: firstNonEmpty(bigString(ev.Amount), req.TokenAmount.String()),
		Status:      StatusCompleted,
		Timestamp:   parseTimestamp(req.Timestamp),
	})
	if err != nil {
		return nil, err
	}
	res.TransactionHash = txHex
	return res, nil
}

func (s *tokenPaymentService) CheckPayment(ctx context.Context, txHash, address string) (*TokenPaymentCheck, error) {
	hash, err := evm.ParseTxHash(txHash)
	if err != nil {
		return nil, apierr.BadRequest("invalid_tx_hash", "%v", err)
	}
	m, err := s.store.Processed(ctx, store.TokenTxKey(hash.Hex()))
	if err != nil {
		return nil, fmt.Errorf("read tx marker: %w", err)
	}
	if m != nil {
		out := &TokenPaymentCheck{Status: StatusCompleted}
		if address != "" {
			addr, err := ValidateAddress(address)
			if err != nil {
				return nil, err
			}
			credits, err := s.store.Balance(ctx, addr)
			if err != nil {
				return nil, fmt.Errorf("read balance: %w", err)
			}
			out.Credits = &credits
		}
		return out, nil
	}
	if s.chain == nil {
		return &TokenPaymentCheck{Status: StatusPending}, nil
	}
	receipt, err := s.chain.TransactionReceipt(ctx, hash)
	switch {
	case err != nil || receipt == nil:
		return &TokenPaymentCheck{Status: StatusPending}, nil
	case receipt.Status != types.ReceiptStatusSuccessful:
		return &TokenPaymentCheck{Status: StatusFailed}, nil
	default:
		return &TokenPaymentCheck{Status: TokenStatusConfirmedNotProcessed}, nil
	}
}

func (s *tokenPaymentService) History(ctx context.Context, address string) ([]payments.Record, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	return s.store.History(ctx, addr, payments.MethodGhiblifyToken, 0)
}

// discountRate accepts 0.3, "0.3" or "30%".
func discountRate(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		s := strings.TrimSpace(t)
		pct := strings.HasSuffix(s, "%")
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSuffix(s, "%"), "%g", &f); err != nil {
			return 0
		}
		if pct {
			return f / 100
		}
		return f
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
