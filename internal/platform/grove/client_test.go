package grove

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yungbote/ghiblify-backend/internal/pkg/httpx"
)

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("chain_id") != "42220" {
			t.Errorf("chain_id: got=%q", r.URL.Query().Get("chain_id"))
		}
		if r.Header.Get("Content-Type") != "image/jpeg" {
			t.Errorf("content type: got=%q", r.Header.Get("Content-Type"))
		}
		b, _ := io.ReadAll(r.Body)
		if string(b) != "img" {
			t.Errorf("body: got=%q", b)
		}
		_, _ = w.Write([]byte(`[{"gateway_url":"https://api.grove.storage/abc","uri":"lens://abc"}]`))
	}))
	defer srv.Close()

	res, err := NewClient(Config{BaseURL: srv.URL}).Upload(context.Background(), []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.URI != "lens://abc" || res.GatewayURL == "" {
		t.Fatalf("result: got=%+v", res)
	}
}

func TestUploadUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Upload(context.Background(), []byte("img"), "")
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("Upload: want StatusError 502 got=%v", err)
	}
}
