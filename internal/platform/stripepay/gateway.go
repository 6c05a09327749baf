package stripepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/yungbote/ghiblify-backend/internal/platform/envutil"
)

const SignatureHeader = "Stripe-Signature"

var (
	ErrMissingSignature = errors.New("no signature provided")
	ErrBadSignature     = errors.New("invalid signature")
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

func ConfigFromEnv(frontendURL string) Config {
	frontendURL = strings.TrimRight(frontendURL, "/")
	return Config{
		SecretKey:     envutil.String("STRIPE_SECRET_KEY", ""),
		WebhookSecret: envutil.String("STRIPE_WEBHOOK_SECRET", ""),
		SuccessURL:    envutil.String("STRIPE_SUCCESS_URL", frontendURL+"/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:     envutil.String("STRIPE_CANCEL_URL", frontendURL+"/cancel"),
	}
}

type CheckoutRequest struct {
	ProductName        string
	Description        string
	UnitAmountCents    int64
	ClientReferenceID  string
	Metadata           map[string]string
	SuccessURLOverride string
}

// Session is the slice of a Checkout Session the payment flow needs.
type Session struct {
	ID                string
	URL               string
	Status            string
	PaymentStatus     string
	ClientReferenceID string
	AmountTotal       int64
	Metadata          map[string]string
}

func (s *Session) Paid() bool { return s != nil && s.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid) }

// Event is a verified webhook event.
type Event struct {
	ID      string
	Type    string
	Session *Session
	// FailureMessage is set for payment_intent.payment_failed.
	FailureMessage string
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error)
	GetCheckoutSession(ctx context.Context, id string) (*Session, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

type gateway struct {
	cfg Config
	api *client.API
}

func NewGateway(cfg Config) (Gateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("missing STRIPE_SECRET_KEY")
	}
	return &gateway{cfg: cfg, api: client.New(cfg.SecretKey, nil)}, nil
}

func (g *gateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	successURL := g.cfg.SuccessURL
	if req.SuccessURLOverride != "" {
		successURL = req.SuccessURLOverride
	}
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(string(stripe.CurrencyUSD)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(req.ProductName),
					Description: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.UnitAmountCents),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	cs, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return fromStripe(cs), nil
}

func (g *gateway) GetCheckoutSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := g.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	return fromStripe(cs), nil
}

func (g *gateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	return ParseWebhook(g.cfg.WebhookSecret, payload, signature)
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func ParseWebhook(secret string, payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, ErrMissingSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}
	switch {
	case strings.HasPrefix(out.Type, "checkout.session."):
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Session = fromStripe(&cs)
	case out.Type == "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err == nil && pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}
	}
	return out, nil
}

func fromStripe(cs *stripe.CheckoutSession) *Session {
	if cs == nil {
		return nil
	}
	return &Session{
		ID:                cs.ID,
		URL:               cs.URL,
		Status:            string(cs.Status),
		PaymentStatus:     string(cs.PaymentStatus),
		ClientReferenceID: cs.ClientReferenceID,
		AmountTotal:       cs.AmountTotal,
		Metadata:          cs.Metadata,
	}
}
