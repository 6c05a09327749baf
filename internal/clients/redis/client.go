package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

// Config accepts either a URL (redis:// or rediss://) or discrete host fields,
// the latter matching how managed providers such as Upstash hand out credentials.
type Config struct {
	URL      string
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	TLS      bool

	DialTimeout time.Duration
}

func (c Config) Configured() bool {
	return strings.TrimSpace(c.URL) != "" || strings.TrimSpace(c.Host) != ""
}

func (c Config) options() (*goredis.Options, error) {
	dial := c.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	if u := strings.TrimSpace(c.URL); u != "" {
		opts, err := goredis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts.DialTimeout = dial
		return opts, nil
	}
	port := c.Port
	if port == 0 {
		port = 6379
	}
	opts := &goredis.Options{
		Addr:        net.JoinHostPort(strings.TrimSpace(c.Host), strconv.Itoa(port)),
		Username:    c.Username,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: dial,
	}
	if c.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// NewClient dials Redis and verifies the connection with a PING.
func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*goredis.Client, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("redis not configured: set REDIS_URL or REDIS_HOST")
	}
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("Connected to Redis", "addr", opts.Addr, "tls", opts.TLSConfig != nil, "db", opts.DB)
	return rdb, nil
}
