package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/domain/wallet"
	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/platform/stripepay"
	"github.com/yungbote/ghiblify-backend/internal/pricing"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

const (
	stripeEventCompleted      = "checkout.session.completed"
	stripeEventAsyncSucceeded = "checkout.session.async_payment_succeeded"
	stripeEventPaymentFailed  = "payment_intent.payment_failed"

	metaTier    = "tier"
	metaCredits = "credits"
	metaWallet  = "wallet_address"
)

type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type WebhookResult struct {
	Status   string `json:"status"`
	Credited bool   `json:"credited"`
}

type StripeSessionStatus struct {
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Credited      bool   `json:"credited"`
	Credits       int64  `json:"credits"`
	Address       string `json:"address,omitempty"`
}

type StripeService interface {
	CreateCheckoutSession(ctx context.Context, tier, address string) (*CheckoutResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
	// SessionStatus credits a paid session whose webhook has not arrived yet.
	SessionStatus(ctx context.Context, sessionID string) (*StripeSessionStatus, error)
	Pricing() map[pricing.Tier]pricing.TableEntry
}

type stripeService struct {
	log     *logger.Logger
	store   store.Store
	gateway stripepay.Gateway
}

func NewStripeService(log *logger.Logger, st store.Store, gw stripepay.Gateway) StripeService {
	return &stripeService{
		log:     log.With("service", "StripeService"),
		store:   st,
		gateway: gw,
	}
}

func (s *stripeService) Pricing() map[pricing.Tier]pricing.TableEntry {
	return pricing.Table(payments.MethodStripe)
}

func (s *stripeService) CreateCheckoutSession(ctx context.Context, tier, address string) (*CheckoutResult, error) {
	t, ok := pricing.ParseTier(tier)
	if !ok {
		return nil, apierr.BadRequest("invalid_tier", "Invalid tier")
	}
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, apierr.Newf(http.StatusServiceUnavailable, "stripe_unavailable", "Stripe is not configured")
	}
	q, _ := pricing.Price(t, payments.MethodStripe)
	sess, err := s.gateway.CreateCheckoutSession(ctx, stripepay.CheckoutRequest{
		ProductName:       fmt.Sprintf("Ghiblify %s Package", titleCase(string(t))),
		Description:       q.Description,
		UnitAmountCents:   int64(q.DiscountedCents()),
		ClientReferenceID: addr,
		Metadata: map[string]string{
			metaTier:    string(t),
			metaCredits: strconv.FormatInt(q.Credits, 10),
			metaWallet:  addr,
		},
	})
	if err != nil {
		s.log.Error("Checkout session failed", "tier", t, "address", addr, "error", err)
		return nil, apierr.New(http.StatusBadGateway, "stripe_error", err)
	}
	s.log.Info("Checkout session created", "session_id", sess.ID, "tier", t, "address", addr)
	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

func (s *stripeService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if s.gateway == nil {
		return nil, apierr.Newf(http.StatusServiceUnavailable, "stripe_unavailable", "Stripe is not configured")
	}
	ev, err := s.gateway.ParseWebhook(payload, signature)
	switch {
	case errors.Is(err, stripepay.ErrMissingSignature):
		return nil, apierr.New(http.StatusBadRequest, "missing_signature", err)
	case errors.Is(err, stripepay.ErrBadSignature):
		s.log.Warn("Stripe webhook signature rejected", "error", err)
		return nil, apierr.WithMessage(http.StatusUnauthorized, "invalid_signature", "Invalid signature", err)
	case err != nil:
		return nil, apierr.New(http.StatusBadRequest, "invalid_payload", err)
	}

	switch ev.Type {
	case stripeEventCompleted, stripeEventAsyncSucceeded:
		if !ev.Session.Paid() {
			s.log.Info("Checkout session not paid yet", "event_id", ev.ID, "session_id", sessionID(ev.Session))
			return &WebhookResult{Status: StatusSuccess}, nil
		}
		res, err := s.creditSession(ctx, ev.Session)
		if err != nil {
			return nil, err
		}
		return &WebhookResult{Status: StatusSuccess, Credited: res.Status == StatusSuccess}, nil
	case stripeEventPaymentFailed:
		s.log.Warn("Stripe payment failed", "event_id", ev.ID, "reason", ev.FailureMessage)
	default:
		s.log.Debug("Stripe event ignored", "event_id", ev.ID, "type", ev.Type)
	}
	return &WebhookResult{Status: StatusSuccess}, nil
}

func (s *stripeService) SessionStatus(ctx context.Context, id string) (*StripeSessionStatus, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apierr.BadRequest("invalid_session", "session id is required")
	}
	if s.gateway == nil {
		return nil, apierr.Newf(http.StatusServiceUnavailable, "stripe_unavailable", "Stripe is not configured")
	}
	sess, err := s.gateway.GetCheckoutSession(ctx, id)
	if err != nil {
		return nil, apierr.New(http.StatusBadGateway, "stripe_error", err)
	}
	out := &StripeSessionStatus{
		SessionID:     sess.ID,
		Status:        sess.Status,
		PaymentStatus: sess.PaymentStatus,
		Address:       sessionAddress(sess),
	}
	if marker, err := s.store.Processed(ctx, store.StripeSessionKey(sess.ID)); err != nil {
		return nil, fmt.Errorf("read session marker: %w", err)
	} else if marker != nil {
		out.Credited = true
		out.Credits = marker.Credits
		return out, nil
	}
	if !sess.Paid() {
		return out, nil
	}
	res, err := s.creditSession(ctx, sess)
	if err != nil {
		return nil, err
	}
	out.Credited = true
	out.Credits = res.CreditsAdded
	if res.Status == StatusAlreadyProcessed {
		if marker, _ := s.store.Processed(ctx, store.StripeSessionKey(sess.ID)); marker != nil {
			out.Credits = marker.Credits
		}
	}
	return out, nil
}

func (s *stripeService) creditSession(ctx context.Context, sess *stripepay.Session) (*PurchaseResult, error) {
	address := sessionAddress(sess)
	if !wallet.Valid(address) {
		s.log.Error("Paid session without wallet address", "session_id", sess.ID)
		return nil, apierr.Unprocessable("missing_wallet", "session %s has no wallet address", sess.ID)
	}
	tier, ok := pricing.ParseTier(sess.Metadata[metaTier])
	if !ok {
		s.log.Error("Paid session with unknown tier", "session_id", sess.ID, "tier", sess.Metadata[metaTier])
		return nil, apierr.Unprocessable("invalid_tier", "session %s has unknown tier", sess.ID)
	}
	pkg, _ := pricing.Lookup(tier)
	if raw := sess.Metadata[metaCredits]; raw != "" && raw != strconv.FormatInt(pkg.Credits, 10) {
		s.log.Warn("Session credits differ from tier", "session_id", sess.ID, "metadata", raw, "tier_credits", pkg.Credits)
	}
	return grantPurchase(ctx, s.log, s.store, store.StripeSessionKey(sess.ID), address, pkg.Credits, payments.Record{
		Method:    payments.MethodStripe,
		PaymentID: sess.ID,
		Tier:      string(tier),
		Amount:    float64(sess.AmountTotal) / 100,
		Status:    StatusCompleted,
		Timestamp: time.Now().Unix(),
	})
}

func sessionAddress(sess *stripepay.Session) string {
	if sess == nil {
		return ""
	}
	if a := strings.TrimSpace(sess.Metadata[metaWallet]); a != "" {
		return wallet.Normalize(a)
	}
	return wallet.Normalize(sess.ClientReferenceID)
}

func sessionID(sess *stripepay.Session) string {
	if sess == nil {
		return ""
	}
	return sess.ID
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
