package coinbase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/ghiblify-backend/internal/pkg/httpx"
	"github.com/yungbote/ghiblify-backend/internal/platform/envutil"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

const (
	SignatureHeader = "X-CC-Webhook-Signature"

	EventChargeConfirmed = "charge:confirmed"
	EventChargeResolved  = "charge:resolved"
	EventChargeFailed    = "charge:failed"
)

var (
	ErrMissingSignature = errors.New("no signature provided")
	ErrBadSignature     = errors.New("invalid signature")
	ErrNoWebhookSecret  = errors.New("coinbase webhook secret not configured")
)

type Config struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:        envutil.String("COINBASE_COMMERCE_API_KEY", ""),
		WebhookSecret: envutil.String("COINBASE_WEBHOOK_SECRET", ""),
		BaseURL:       envutil.String("COINBASE_API_URL", "https://api.commerce.coinbase.com"),
	}
}

type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type ChargeRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	PricingType string         `json:"pricing_type"`
	LocalPrice  Money          `json:"local_price"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	RedirectURL string         `json:"redirect_url,omitempty"`
	CancelURL   string         `json:"cancel_url,omitempty"`
}

type Charge struct {
	ID        string         `json:"id"`
	Code      string         `json:"code"`
	HostedURL string         `json:"hosted_url"`
	Metadata  map[string]any `json:"metadata"`
}

// MetadataString returns metadata[key] as a string regardless of JSON type.
func (c Charge) MetadataString(key string) string {
	switch v := c.Metadata[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      Charge `json:"data"`
}

type Client interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
}

type client struct {
	api *httpx.JSONClient
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing COINBASE_COMMERCE_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.commerce.coinbase.com"
	}
	return &client{api: &httpx.JSONClient{
		Service: "coinbase_commerce",
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Header: http.Header{
			"X-CC-Api-Key": []string{cfg.APIKey},
			"X-CC-Version": []string{"2018-03-22"},
		},
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 2,
		Log:        log.With("client", "CoinbaseCommerce"),
	}}, nil
}

func (c *client) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	var out struct {
		Data Charge `json:"data"`
	}
	if err := c.api.Do(ctx, http.MethodPost, "/charges", req, &out); err != nil {
		return nil, err
	}
	if out.Data.ID == "" {
		return nil, errors.New("coinbase charge response missing id")
	}
	return &out.Data, nil
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return ErrNoWebhookSecret
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseEvent accepts the delivery envelope ({"event": {...}}) or a bare event.
func ParseEvent(body []byte) (*Event, error) {
	var wrapped struct {
		Event *Event `json:"event"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode coinbase event: %w", err)
	}
	if wrapped.Event != nil && wrapped.Event.Type != "" {
		return wrapped.Event, nil
	}
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode coinbase event: %w", err)
	}
	if ev.Type == "" {
		return nil, errors.New("coinbase event missing type")
	}
	return &ev, nil
}
