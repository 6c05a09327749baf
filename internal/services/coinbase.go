package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/domain/wallet"
	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/coinbase"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/pricing"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

type ChargeResult struct {
	HostedURL string `json:"hosted_url"`
	ChargeID  string `json:"charge_id"`
}

type CoinbaseService interface {
	CreateCharge(ctx context.Context, tier, address string) (*ChargeResult, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error)
	Pricing() map[pricing.Tier]pricing.TableEntry
}

type coinbaseService struct {
	log           *logger.Logger
	store         store.Store
	client        coinbase.Client
	webhookSecret string
	redirectURL   string
	cancelURL     string
}

func NewCoinbaseService(log *logger.Logger, st store.Store, client coinbase.Client, webhookSecret, frontendURL string) CoinbaseService {
	return &coinbaseService{
		log:           log.With("service", "CoinbaseService"),
		store:         st,
		client:        client,
		webhookSecret: webhookSecret,
		redirectURL:   frontendURL + "/success",
		cancelURL:     frontendURL + "/cancel",
	}
}

func (s *coinbaseService) Pricing() map[pricing.Tier]pricing.TableEntry {
	return pricing.Table(payments.MethodCoinbase)
}

func (s *coinbaseService) CreateCharge(ctx context.Context, tier, address string) (*ChargeResult, error) {
	t, ok := pricing.ParseTier(tier)
	if !ok {
		return nil, apierr.BadRequest("invalid_tier", "Invalid tier: %s", tier)
	}
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	if s.client == nil {
		return nil, apierr.Newf(http.StatusServiceUnavailable, "coinbase_unavailable", "Coinbase Commerce is not configured")
	}
	q, _ := pricing.Price(t, payments.MethodCoinbase)
	charge, err := s.client.CreateCharge(ctx, coinbase.ChargeRequest{
		Name:        fmt.Sprintf("Ghiblify %s Package", titleCase(string(t))),
		Description: q.Description,
		PricingType: "fixed_price",
		LocalPrice:  coinbase.Money{Amount: q.DiscountedCents().String(), Currency: "USD"},
		Metadata: map[string]any{
			metaTier:    string(t),
			metaCredits: q.Credits,
			metaWallet:  addr,
		},
		RedirectURL: s.redirectURL,
		CancelURL:   s.cancelURL,
	})
	if err != nil {
		s.log.Error("Coinbase charge creation failed", "tier", t, "error", err)
		return nil, apierr.WithMessage(http.StatusBadGateway, "coinbase_error", "Failed to create charge", err)
	}
	s.log.Info("Coinbase charge created", "charge_id", charge.ID, "tier", t, "address", addr)
	return &ChargeResult{HostedURL: charge.HostedURL, ChargeID: charge.ID}, nil
}

func (s *coinbaseService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	err := coinbase.VerifySignature(s.webhookSecret, body, signature)
	switch {
	case errors.Is(err, coinbase.ErrMissingSignature):
		return nil, apierr.New(http.StatusBadRequest, "missing_signature", err)
	case errors.Is(err, coinbase.ErrBadSignature):
		s.log.Warn("Coinbase webhook signature rejected")
		return nil, apierr.New(http.StatusUnauthorized, "invalid_signature", err)
	case err != nil:
		return nil, apierr.New(http.StatusServiceUnavailable, "coinbase_unavailable", err)
	}
	ev, err := coinbase.ParseEvent(body)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_payload", err)
	}

	switch ev.Type {
	case coinbase.EventChargeConfirmed, coinbase.EventChargeResolved:
		res, err := s.creditCharge(ctx, ev)
		if err != nil {
			return nil, err
		}
		return &WebhookResult{Status: StatusSuccess, Credited: res.Status == StatusSuccess}, nil
	case coinbase.EventChargeFailed:
		s.log.Warn("Coinbase charge failed", "event_id", ev.ID, "charge_id", ev.Data.ID)
	default:
		s.log.Debug("Coinbase event ignored", "event_id", ev.ID, "type", ev.Type)
	}
	return &WebhookResult{Status: StatusSuccess}, nil
}

func (s *coinbaseService) creditCharge(ctx context.Context, ev *coinbase.Event) (*PurchaseResult, error) {
	charge := ev.Data
	if charge.ID == "" {
		return nil, apierr.BadRequest("invalid_payload", "charge id missing")
	}
	address := wallet.Normalize(charge.MetadataString(metaWallet))
	if !wallet.Valid(address) {
		s.log.Error("Confirmed charge without wallet address", "charge_id", charge.ID)
		return nil, apierr.Unprocessable("missing_wallet", "charge %s has no wallet address", charge.ID)
	}
	tier, ok := pricing.ParseTier(charge.MetadataString(metaTier))
	if !ok {
		s.log.Error("Confirmed charge with unknown tier", "charge_id", charge.ID, "tier", charge.MetadataString(metaTier))
		return nil, apierr.Unprocessable("invalid_tier", "charge %s has unknown tier", charge.ID)
	}
	q, _ := pricing.Price(tier, payments.MethodCoinbase)
	return grantPurchase(ctx, s.log, s.store, store.CoinbaseChargeKey(charge.ID), address, q.Credits, payments.Record{
		Method:    payments.MethodCoinbase,
		PaymentID: charge.ID,
		Tier:      string(tier),
		Amount:    q.DiscountedPrice,
		Status:    StatusCompleted,
	})
}
