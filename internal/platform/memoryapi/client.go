package memoryapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/yungbote/ghiblify-backend/internal/pkg/httpx"
	"github.com/yungbote/ghiblify-backend/internal/platform/envutil"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

const (
	TypeAddress   = "address"
	TypeFarcaster = "farcaster"
)

var ErrNotConfigured = errors.New("Memory API not configured")

type Graph map[string]any

type Config struct {
	APIKey            string
	BaseURL           string
	CacheTTL          time.Duration
	RequestsPerSecond float64
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:            envutil.String("MEMORY_API_KEY", ""),
		BaseURL:           envutil.String("MEMORY_API_BASE_URL", "https://api.memoryproto.co/v1"),
		CacheTTL:          envutil.Duration("MEMORY_API_CACHE_TTL", 5*time.Minute),
		RequestsPerSecond: float64(envutil.Int("MEMORY_API_RPS", 10)),
	}
}

type Client interface {
	Available() bool
	BaseURL() string
	IdentityGraph(ctx context.Context, identifier, identifierType string) (Graph, error)
	SocialGraph(ctx context.Context, identifier, identifierType string) (Graph, error)
}

type client struct {
	cfg     Config
	api     *httpx.JSONClient
	cache   *gocache.Cache
	limiter *rate.Limiter
}

// NewClient never fails; without an API key every call returns ErrNotConfigured.
func NewClient(log *logger.Logger, cfg Config) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.memoryproto.co/v1"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	c := &client{
		cfg:   cfg,
		cache: gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		api: &httpx.JSONClient{
			Service:    "memory_api",
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			Header:     http.Header{"Authorization": []string{"Bearer " + cfg.APIKey}},
			HTTPClient: &http.Client{Timeout: 20 * time.Second},
			MaxRetries: 1,
			Log:        log.With("client", "MemoryAPI"),
		},
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}
	return c
}

func (c *client) Available() bool { return strings.TrimSpace(c.cfg.APIKey) != "" }

func (c *client) BaseURL() string { return c.cfg.BaseURL }

func (c *client) IdentityGraph(ctx context.Context, identifier, identifierType string) (Graph, error) {
	return c.fetch(ctx, "identity-graph", identifier, identifierType)
}

func (c *client) SocialGraph(ctx context.Context, identifier, identifierType string) (Graph, error) {
	return c.fetch(ctx, "social-graph", identifier, identifierType)
}

func (c *client) fetch(ctx context.Context, kind, identifier, identifierType string) (Graph, error) {
	if !c.Available() {
		return nil, ErrNotConfigured
	}
	identifier = strings.TrimSpace(identifier)
	identifierType = strings.TrimSpace(identifierType)
	if identifier == "" || identifierType == "" {
		return nil, fmt.Errorf("identifier and identifier_type are required")
	}
	path := "/" + kind + "/" + url.PathEscape(identifierType) + "/" + url.PathEscape(identifier)
	if v, ok := c.cache.Get(path); ok {
		return v.(Graph), nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var g Graph
	if err := c.api.Do(ctx, http.MethodGet, path, nil, &g); err != nil {
		return nil, err
	}
	if g == nil {
		g = Graph{}
	}
	c.cache.SetDefault(path, g)
	return g, nil
}
