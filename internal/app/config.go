package app

import (
	"time"

	"github.com/yungbote/ghiblify-backend/internal/clients/redis"
	"github.com/yungbote/ghiblify-backend/internal/db"
	"github.com/yungbote/ghiblify-backend/internal/http/middleware"
	"github.com/yungbote/ghiblify-backend/internal/observability"
	"github.com/yungbote/ghiblify-backend/internal/platform/envutil"
	"github.com/yungbote/ghiblify-backend/internal/platform/gcp"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/services"
)

type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string

	Redis         redis.Config
	RedisRequired bool

	JWTSecretKey      string
	AccessTokenTTL    time.Duration
	NonceTTL          time.Duration
	AllowHeaderWallet bool
	TrustSmartWallets bool
	AdminKey          string
	APIKey            string

	CeloRPCURL       string
	CeloContract     string
	CeloChainID      int64
	CeloPollInterval time.Duration
	CeloBlockRange   uint64

	BaseRPCURL        string
	SignatureVerifier string
	TokenContract     string
	BasePayRecipient  string

	ObjectStorageMode   string
	StorageEmulatorHost string
	StorageLocalDir     string
	StorageModeInferred bool

	Journal db.Config

	MetricsAddr string
	Otel        observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:           envutil.String("PORT", "8000"),
		FrontendURL:    envutil.String("FRONTEND_URL", "https://ghiblify-it.vercel.app"),
		AllowedOrigins: envutil.CSV("CORS_ALLOWED_ORIGINS", middleware.DefaultAllowedOrigins),

		Redis: redis.Config{
			URL:      envutil.String("REDIS_URL", ""),
			Host:     envutil.First("", "REDIS_HOST", "UPSTASH_REDIS_HOST"),
			Port:     envutil.Int("REDIS_PORT", 6379),
			Username: envutil.String("REDIS_USERNAME", "default"),
			Password: envutil.First("", "REDIS_PASSWORD", "UPSTASH_REDIS_PASSWORD"),
			DB:       envutil.Int("REDIS_DB", 0),
			TLS:      envutil.Bool("REDIS_SSL", true),
		},
		RedisRequired: envutil.Bool("REDIS_REQUIRED", true),

		JWTSecretKey:      envutil.String("JWT_SECRET_KEY", ""),
		AccessTokenTTL:    envutil.Duration("ACCESS_TOKEN_TTL", services.DefaultAccessTTL),
		NonceTTL:          envutil.Duration("NONCE_TTL", services.DefaultNonceTTL),
		AllowHeaderWallet: envutil.Bool("ALLOW_HEADER_WALLET_AUTH", false),
		TrustSmartWallets: envutil.Bool("TRUST_BASE_ACCOUNT_SIGNATURES", false),
		AdminKey:          envutil.String("ADMIN_API_KEY", ""),
		APIKey:            envutil.String("GHIBLIFY_API_KEY", ""),

		CeloRPCURL:       envutil.String("CELO_RPC_URL", "https://alfajores-forno.celo-testnet.org"),
		CeloContract:     envutil.String("CELO_CONTRACT_ADDRESS", services.DefaultCeloContract),
		CeloChainID:      envutil.Int64("CELO_CHAIN_ID", services.DefaultCeloChainID),
		CeloPollInterval: envutil.Duration("CELO_POLL_INTERVAL", 30*time.Second),
		CeloBlockRange:   uint64(envutil.Int64("CELO_MAX_BLOCK_RANGE", services.DefaultCeloBlockRange)),

		BaseRPCURL:        envutil.String("BASE_RPC_URL", "https://mainnet.base.org"),
		SignatureVerifier: envutil.String("SIGNATURE_VALIDATOR_ADDRESS", ""),
		TokenContract:     envutil.String("GHIBLIFY_TOKEN_PAYMENTS_ADDRESS", ""),
		BasePayRecipient:  envutil.String("BASE_PAY_RECIPIENT", ""),

		Journal: db.Config{
			Driver: envutil.String("JOURNAL_DRIVER", "postgres"),
			DSN:    envutil.First("", "JOURNAL_DSN", "DATABASE_URL"),
		},

		MetricsAddr: envutil.String("METRICS_ADDR", ":9090"),
		Otel:        observability.OtelConfigFromEnv(),
	}

	storageCfg, err := gcp.ResolveObjectStorageConfigFromEnv()
	if err != nil {
		// resolveBucketService reports the bad mode with a typed error
		log.Warn("Object storage config invalid", "error", err)
		storageCfg.Mode = gcp.ObjectStorageMode(envutil.String("OBJECT_STORAGE_MODE", ""))
	}
	cfg.ObjectStorageMode = string(storageCfg.Mode)
	cfg.StorageEmulatorHost = storageCfg.EmulatorHost
	cfg.StorageLocalDir = storageCfg.LocalDir
	cfg.StorageModeInferred = storageCfg.Inferred

	if !cfg.Redis.Configured() && cfg.RedisRequired {
		log.Warn("Redis is not configured and REDIS_REQUIRED=true; startup will fail")
	}
	return cfg
}
