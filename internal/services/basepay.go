package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/domain/wallet"
	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/evm"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/pricing"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

// BasePayRequest is the callback the frontend relays once Base Pay settles.
type BasePayRequest struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Amount    json.Number `json:"amount"`
	To        string      `json:"to"`
	From      string      `json:"from"`
	Tier      string      `json:"tier"`
	Timestamp any         `json:"timestamp"`
}

type BasePayCheck struct {
	Status  string `json:"status"`
	Credits *int64 `json:"credits,omitempty"`
}

type BasePayService interface {
	ProcessPayment(ctx context.Context, req BasePayRequest) (*PurchaseResult, error)
	CheckPayment(ctx context.Context, paymentID, address string) (*BasePayCheck, error)
	History(ctx context.Context, address string) ([]payments.Record, error)
	Pricing() map[pricing.Tier]pricing.TableEntry
}

type basePayService struct {
	log   *logger.Logger
	store store.Store
	// recipient, when set, must match the payment's "to" address.
	recipient string
}

func NewBasePayService(log *logger.Logger, st store.Store, recipient string) BasePayService {
	return &basePayService{
		log:       log.With("service", "BasePayService"),
		store:     st,
		recipient: strings.TrimSpace(recipient),
	}
}

func (s *basePayService) Pricing() map[pricing.Tier]pricing.TableEntry {
	return pricing.Table(payments.MethodBasePay)
}

func (s *basePayService) ProcessPayment(ctx context.Context, req BasePayRequest) (*PurchaseResult, error) {
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || req.Status == "" || req.Amount == "" || req.To == "" || req.From == "" || req.Tier == "" {
		return nil, apierr.BadRequest("missing_fields", "Missing required payment data")
	}
	tier, ok := pricing.ParseTier(req.Tier)
	if !ok {
		return nil, apierr.BadRequest("invalid_tier", "Invalid tier: %s", req.Tier)
	}
	if !wallet.Valid(req.From) {
		return nil, apierr.BadRequest("invalid_address", "Invalid payer address")
	}
	payer := wallet.Normalize(req.From)
	s.log.Info("Processing Base Pay payment", "payment_id", req.ID, "address", payer, "status", req.Status)

	switch req.Status {
	case StatusCompleted:
	case StatusFailed:
		s.log.Warn("Base Pay payment failed", "payment_id", req.ID)
		return &PurchaseResult{Status: StatusFailed, PaymentID: req.ID}, nil
	default:
		return &PurchaseResult{Status: req.Status, PaymentID: req.ID}, nil
	}

	amount, err := req.Amount.Float64()
	if err != nil || !pricing.ValidAmount(tier, payments.MethodBasePay, amount) {
		return nil, apierr.BadRequest("amount_mismatch", "Payment amount mismatch. Expected %v, got %s",
			pricing.ExpectedAmounts(tier, payments.MethodBasePay), req.Amount.String())
	}
	if s.recipient != "" && !evm.SameAddress(req.To, s.recipient) {
		s.log.Warn("Base Pay recipient mismatch", "payment_id", req.ID, "to", req.To)
		return nil, apierr.BadRequest("recipient_mismatch", "Payment recipient mismatch")
	}

	q, _ := pricing.Price(tier, payments.MethodBasePay)
	res, err := grantPurchase(ctx, s.log, s.store, store.BasePayKey(req.ID), payer, q.Credits, payments.Record{
		Method:         payments.MethodBasePay,
		PaymentID:      req.ID,
		Tier:           string(tier),
		Amount:         amount,
		OriginalAmount: q.BasePrice,
		Discount:       q.DiscountRate,
		Savings:        q.Savings,
		Status:         StatusCompleted,
		Timestamp:      parseTimestamp(req.Timestamp),
	})
	if err != nil {
		return nil, err
	}
	res.PaymentID = req.ID
	return res, nil
}

func (s *basePayService) CheckPayment(ctx context.Context, paymentID, address string) (*BasePayCheck, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, apierr.BadRequest("invalid_payment", "payment id is required")
	}
	m, err := s.store.Processed(ctx, store.BasePayKey(paymentID))
	if err != nil {
		return nil, fmt.Errorf("read payment marker: %w", err)
	}
	if m == nil {
		return &BasePayCheck{Status: StatusPending}, nil
	}
	out := &BasePayCheck{Status: StatusCompleted}
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

func (s *basePayService) History(ctx context.Context, address string) ([]payments.Record, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	return s.store.History(ctx, addr, payments.MethodBasePay, 0)
}

// parseTimestamp accepts unix seconds, unix millis or RFC 3339.
func parseTimestamp(v any) int64 {
	var n int64
	switch t := v.(type) {
	case float64:
		n = int64(t)
	case json.Number:
		n, _ = t.Int64()
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			n = parsed
		} else if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(t)); err == nil {
			n = ts.Unix()
		}
	}
	if n > 1e12 {
		n /= 1000
	}
	if n <= 0 {
		return time.Now().Unix()
	}
	return n
}
