package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/ghiblify-backend/internal/pkg/httpx"
	"github.com/yungbote/ghiblify-backend/internal/platform/envutil"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

var ErrNoOutput = errors.New("no output received from Replicate")

type Prediction struct {
	ID          string            `json:"id"`
	Version     string            `json:"version,omitempty"`
	Status      string            `json:"status"`
	Input       map[string]any    `json:"input,omitempty"`
	Output      json.RawMessage   `json:"output,omitempty"`
	Error       any               `json:"error,omitempty"`
	Logs        string            `json:"logs,omitempty"`
	URLs        map[string]string `json:"urls,omitempty"`
	CreatedAt   string            `json:"created_at,omitempty"`
	StartedAt   string            `json:"started_at,omitempty"`
	CompletedAt string            `json:"completed_at,omitempty"`
	Metrics     map[string]any    `json:"metrics,omitempty"`
}

func (p *Prediction) Terminal() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// OutputURLs accepts both output shapes Replicate models produce: a single
// URL string or a list of URLs.
func (p *Prediction) OutputURLs() []string {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return nil
	}
	var one string
	if err := json.Unmarshal(p.Output, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil {
		out := many[:0]
		for _, u := range many {
			if strings.TrimSpace(u) != "" {
				out = append(out, u)
			}
		}
		return out
	}
	return nil
}

func (p *Prediction) ErrorMessage() string {
	switch e := p.Error.(type) {
	case nil:
		return ""
	case string:
		return e
	default:
		b, _ := json.Marshal(e)
		return string(b)
	}
}

type Client interface {
	CreatePrediction(ctx context.Context, version string, input map[string]any) (*Prediction, error)
	GetPrediction(ctx context.Context, id string) (*Prediction, error)
	// Run creates a prediction and polls until it reaches a terminal state.
	Run(ctx context.Context, version string, input map[string]any) (*Prediction, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

type Config struct {
	APIToken     string
	BaseURL      string
	PollInterval time.Duration
	Timeout      time.Duration
	// RequestsPerSecond caps outbound calls; 0 disables the limiter.
	RequestsPerSecond float64
}

func ConfigFromEnv() Config {
	return Config{
		APIToken:          envutil.String("REPLICATE_API_TOKEN", ""),
		BaseURL:           envutil.String("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		PollInterval:      envutil.Duration("REPLICATE_POLL_INTERVAL", time.Second),
		Timeout:           envutil.Duration("REPLICATE_TIMEOUT", 3*time.Minute),
		RequestsPerSecond: float64(envutil.Int("REPLICATE_RPS", 5)),
	}
}

type client struct {
	log     *logger.Logger
	cfg     Config
	api     *httpx.JSONClient
	hc      *http.Client
	limiter *rate.Limiter
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, fmt.Errorf("missing REPLICATE_API_TOKEN")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.replicate.com/v1"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	hc := &http.Client{Timeout: 60 * time.Second}
	c := &client{
		log: log.With("client", "ReplicateClient"),
		cfg: cfg,
		hc:  hc,
		api: &httpx.JSONClient{
			Service:    "replicate",
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			Header:     http.Header{"Authorization": []string{"Token " + cfg.APIToken}},
			HTTPClient: hc,
			MaxRetries: 2,
			Log:        log,
		},
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}
	return c, nil
}

func (c *client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *client) CreatePrediction(ctx context.Context, version string, input map[string]any) (*Prediction, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var p Prediction
	body := map[string]any{"version": version, "input": input}
	if err := c.api.Do(ctx, http.MethodPost, "/predictions", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("prediction id required")
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var p Prediction
	if err := c.api.Do(ctx, http.MethodGet, "/predictions/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *client) Run(ctx context.Context, version string, input map[string]any) (*Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	p, err := c.CreatePrediction(ctx, version, input)
	if err != nil {
		return nil, err
	}
	c.log.Info("Prediction created", "prediction_id", p.ID, "status", p.Status)
	for !p.Terminal() {
		if err := httpx.Sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, fmt.Errorf("prediction %s: %w", p.ID, err)
		}
		if p, err = c.GetPrediction(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	switch p.Status {
	case StatusSucceeded:
		if len(p.OutputURLs()) == 0 {
			return p, ErrNoOutput
		}
		return p, nil
	case StatusCanceled:
		return p, fmt.Errorf("prediction %s canceled", p.ID)
	default:
		return p, fmt.Errorf("prediction %s failed: %s", p.ID, p.ErrorMessage())
	}
}

func (c *client) Download(ctx context.Context, u string) ([]byte, error) {
	return httpx.Download(ctx, c.hc, u, http.Header{"Authorization": []string{"Token " + c.cfg.APIToken}}, 0)
}
