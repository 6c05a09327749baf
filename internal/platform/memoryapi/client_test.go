package memoryapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

func TestIdentityGraphIsCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/identity-graph/farcaster/alice" {
			t.Errorf("path: got=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth: got=%q", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(`{"ethereum":{"id":"0xabc"}}`))
	}))
	defer srv.Close()

	c := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL})
	for i := 0; i < 3; i++ {
		g, err := c.IdentityGraph(context.Background(), "alice", TypeFarcaster)
		if err != nil {
			t.Fatalf("IdentityGraph: %v", err)
		}
		if _, ok := g["ethereum"]; !ok {
			t.Fatalf("graph: got=%v", g)
		}
	}
	if hits != 1 {
		t.Fatalf("upstream hits: want=1 got=%d", hits)
	}
}

func TestUnconfigured(t *testing.T) {
	c := NewClient(logger.Nop(), Config{})
	if c.Available() {
		t.Fatalf("Available: want=false")
	}
	if _, err := c.SocialGraph(context.Background(), "0xabc", TypeAddress); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("SocialGraph: want=ErrNotConfigured got=%v", err)
	}
}
