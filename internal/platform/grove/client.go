package grove

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/ghiblify-backend/internal/pkg/httpx"
	"github.com/yungbote/ghiblify-backend/internal/platform/envutil"
)

type Config struct {
	BaseURL string
	ChainID int64
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL: envutil.String("GROVE_API_URL", "https://api.grove.storage"),
		ChainID: envutil.Int64("GROVE_CHAIN_ID", 42220),
	}
}

type UploadResult struct {
	GatewayURL string `json:"gateway_url"`
	URI        string `json:"uri"`
	StorageKey string `json:"storage_key,omitempty"`
}

type Client interface {
	// Upload stores immutable content in a single step.
	Upload(ctx context.Context, data []byte, contentType string) (*UploadResult, error)
}

type client struct {
	cfg Config
	hc  *http.Client
}

func NewClient(cfg Config) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.grove.storage"
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = 42220
	}
	return &client{cfg: cfg, hc: &http.Client{Timeout: 60 * time.Second}}
}

func (c *client) Upload(ctx context.Context, data []byte, contentType string) (*UploadResult, error) {
	if contentType == "" {
		contentType = "image/png"
	}
	u := fmt.Sprintf("%s/?chain_id=%d", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.ChainID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpx.StatusError{Service: "grove", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	// Grove answers with a single object or a one-element array.
	var one UploadResult
	if err := json.Unmarshal(raw, &one); err == nil {
		return &one, nil
	}
	var many []UploadResult
	if err := json.Unmarshal(raw, &many); err != nil || len(many) == 0 {
		return nil, fmt.Errorf("decode grove response: %s", string(raw))
	}
	return &many[0], nil
}
