package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *StatusError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// JSONClient performs JSON requests against one upstream with bounded retries.
type JSONClient struct {
	Service    string
	BaseURL    string
	Header     http.Header
	HTTPClient *http.Client
	MaxRetries int
	Log        *logger.Logger
}

// Do sends body (JSON encoded when non-nil) and decodes a 2xx response into
// out. Retryable failures back off exponentially, honoring Retry-After.
func (c *JSONClient) Do(ctx context.Context, method, path string, body any, out any) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.RandomizationFactor = 0.2
	policy.Reset()

	var raw []byte
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		resp, b, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			raw = b
			return nil
		}
		if !IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		if wait := retryAfter(resp, 10*time.Second); wait > 0 {
			if sErr := Sleep(ctx, wait); sErr != nil {
				return backoff.Permanent(sErr)
			}
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(c.MaxRetries, 0))), ctx),
		func(err error, next time.Duration) {
			if c.Log != nil {
				c.Log.Warn("Upstream request retrying",
					"upstream", c.Service,
					"path", path,
					"attempt", attempt,
					"max_retries", c.MaxRetries,
					"sleep", next.String(),
					"error", err.Error(),
				)
			}
		})
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s decode: %w", c.Service, err)
	}
	return nil
}

func (c *JSONClient) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var rdr io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
		rdr = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return nil, nil, err
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &StatusError{Service: c.Service, StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	return resp, raw, nil
}

// ErrResponseTooLarge is returned by Download when the body exceeds its limit.
var ErrResponseTooLarge = errors.New("response too large")

// Download fetches url and returns its body, failing with ErrResponseTooLarge
// past limit bytes.
func Download(ctx context.Context, hc *http.Client, url string, header http.Header, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Service: "download", StatusCode: resp.StatusCode, Body: string(b)}
	}
	if limit <= 0 {
		limit = 32 << 20
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrResponseTooLarge, limit)
	}
	return b, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
