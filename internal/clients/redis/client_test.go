package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

func TestConfigOptionsFromHostFields(t *testing.T) {
	opts, err := Config{Host: "cache.example", Password: "pw", TLS: true}.options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache.example:6379" {
		t.Fatalf("addr: want=cache.example:6379 got=%s", opts.Addr)
	}
	if opts.TLSConfig == nil {
		t.Fatalf("tls: want enabled")
	}
}

func TestConfigOptionsFromURL(t *testing.T) {
	opts, err := Config{URL: "redis://:secret@localhost:6380/2"}.options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 2 || opts.Password != "secret" {
		t.Fatalf("options: got addr=%s db=%d", opts.Addr, opts.DB)
	}
}

func TestNewClientPings(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewClient(context.Background(), logger.Nop(), Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer rdb.Close()

	if _, err := NewClient(context.Background(), logger.Nop(), Config{}); err == nil {
		t.Fatalf("NewClient without config: want error")
	}
}
