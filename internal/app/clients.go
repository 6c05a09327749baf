package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/ghiblify-backend/internal/clients/redis"
	"github.com/yungbote/ghiblify-backend/internal/db"
	"github.com/yungbote/ghiblify-backend/internal/platform/coinbase"
	"github.com/yungbote/ghiblify-backend/internal/platform/comfyui"
	"github.com/yungbote/ghiblify-backend/internal/platform/evm"
	"github.com/yungbote/ghiblify-backend/internal/platform/gcp"
	"github.com/yungbote/ghiblify-backend/internal/platform/grove"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/platform/memoryapi"
	"github.com/yungbote/ghiblify-backend/internal/platform/replicate"
	"github.com/yungbote/ghiblify-backend/internal/platform/stripepay"
)

// Clients holds outbound connections. Optional providers are nil when their
// credentials are missing; the services answer 503 for those.
type Clients struct {
	Redis     *goredis.Client
	Celo      *ethclient.Client
	Base      *ethclient.Client
	JournalDB *db.Service

	Stripe    stripepay.Gateway
	Coinbase  coinbase.Client
	Replicate replicate.Client
	ComfyUI   comfyui.Client
	Memory    memoryapi.Client
	Grove     grove.Client
	Bucket    gcp.BucketService
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Redis
	if cfg.Redis.Configured() {
		rdb, err := redis.NewClient(ctx, log, cfg.Redis)
		switch {
		case err == nil:
			c.Redis = rdb
		case cfg.RedisRequired:
			return Clients{}, fmt.Errorf("init redis: %w", err)
		default:
			log.Warn("Redis unavailable, falling back to in-memory storage", "error", err)
		}
	} else if cfg.RedisRequired {
		return Clients{}, fmt.Errorf("init redis: REDIS_URL or REDIS_HOST is required")
	}

	// Journal
	if cfg.Journal.Enabled() {
		svc, err := db.Open(log, cfg.Journal)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init journal db: %w", err)
		}
		if err := svc.AutoMigrateAll(); err != nil {
			_ = svc.Close()
			c.Close()
			return Clients{}, fmt.Errorf("journal automigrate: %w", err)
		}
		c.JournalDB = svc
	}

	// Chains: dialing is lazy, failures only disable the dependent flow.
	if celo, err := evm.Dial(ctx, cfg.CeloRPCURL); err != nil {
		log.Warn("CELO RPC unavailable", "error", err)
	} else {
		c.Celo = celo
	}
	if base, err := evm.Dial(ctx, cfg.BaseRPCURL); err != nil {
		log.Warn("Base RPC unavailable", "error", err)
	} else {
		c.Base = base
	}

	// Payments
	if gw, err := stripepay.NewGateway(stripepay.ConfigFromEnv(cfg.FrontendURL)); err != nil {
		log.Warn("Stripe disabled", "error", err)
	} else {
		c.Stripe = gw
	}
	if cb, err := coinbase.NewClient(log, coinbase.ConfigFromEnv()); err != nil {
		log.Warn("Coinbase Commerce disabled", "error", err)
	} else {
		c.Coinbase = cb
	}

	// Image providers
	if rep, err := replicate.NewClient(log, replicate.ConfigFromEnv()); err != nil {
		log.Warn("Replicate disabled", "error", err)
	} else {
		c.Replicate = rep
	}
	if comfy, err := comfyui.NewClient(log, comfyui.ConfigFromEnv()); err != nil {
		log.Warn("ComfyUI disabled", "error", err)
	} else {
		c.ComfyUI = comfy
	}

	c.Memory = memoryapi.NewClient(log, memoryapi.ConfigFromEnv())
	c.Grove = grove.NewClient(grove.ConfigFromEnv())

	if bucket, err := resolveBucketService(log, cfg); err == nil {
		c.Bucket = bucket
	}
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.JournalDB != nil {
		_ = c.JournalDB.Close()
	}
	if c.Celo != nil {
		c.Celo.Close()
	}
	if c.Base != nil {
		c.Base.Close()
	}
}
