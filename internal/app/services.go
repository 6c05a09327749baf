package app

import (
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/yungbote/ghiblify-backend/internal/jobs/worker"
	"github.com/yungbote/ghiblify-backend/internal/journal"
	"github.com/yungbote/ghiblify-backend/internal/platform/envutil"
	"github.com/yungbote/ghiblify-backend/internal/platform/evm"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/services"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

type Services struct {
	Store store.Store

	Auth      services.AuthService
	Credits   services.CreditsService
	Stripe    services.StripeService
	Coinbase  services.CoinbaseService
	Celo      services.CeloService
	BasePay   services.BasePayService
	Token     services.TokenPaymentService
	Transform services.TransformService
	Creations services.CreationsService
	Photos    services.PhotosService
	Grove     services.GroveService
	Memory    services.MemoryService

	Worker *worker.Worker
}

// wireStore picks Redis when connected and the in-memory ledger otherwise, then
// layers the audit journal on top.
func wireStore(log *logger.Logger, clients Clients, j *journal.Journal) store.Store {
	var st store.Store
	if clients.Redis != nil {
		st = store.NewRedisStore(log, clients.Redis)
	} else {
		log.Warn("Using in-memory ledger; balances are lost on restart")
		st = store.NewMemoryStore(log)
	}
	return journal.Wrap(st, j, log)
}

func journalFor(log *logger.Logger, clients Clients) *journal.Journal {
	if clients.JournalDB == nil {
		return nil
	}
	return journal.New(log, clients.JournalDB.DB())
}

// chainReader keeps a missing RPC client a true nil interface.
func chainReader(c *ethclient.Client) evm.ChainReader {
	if c == nil {
		return nil
	}
	return c
}

func wireServices(log *logger.Logger, cfg Config, clients Clients) (Services, error) {
	log.Info("Wiring services...")
	j := journalFor(log, clients)
	st := wireStore(log, clients, j)

	var verifier services.SignatureVerifier
	if base := chainReader(clients.Base); base != nil {
		v, err := evm.NewSmartWalletVerifier(base, cfg.SignatureVerifier)
		if err != nil {
			return Services{}, fmt.Errorf("init signature verifier: %w", err)
		}
		verifier = v
	}
	auth, err := services.NewAuthService(log, st, verifier, services.AuthConfig{
		JWTSecret:         cfg.JWTSecretKey,
		AccessTTL:         cfg.AccessTokenTTL,
		NonceTTL:          cfg.NonceTTL,
		TrustSmartWallets: cfg.TrustSmartWallets,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init auth service: %w", err)
	}

	credits := services.NewCreditsService(log, st, j)

	celo, err := services.NewCeloService(log, st, chainReader(clients.Celo), services.CeloConfig{
		Contract:      cfg.CeloContract,
		ChainID:       cfg.CeloChainID,
		MaxBlockRange: cfg.CeloBlockRange,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init celo service: %w", err)
	}
	token, err := services.NewTokenPaymentService(log, st, chainReader(clients.Base), cfg.TokenContract)
	if err != nil {
		return Services{}, fmt.Errorf("init token payment service: %w", err)
	}

	creations := services.NewCreationsService(log, st)
	transform := services.NewTransformService(log, credits, creations, clients.Bucket, clients.Replicate, clients.ComfyUI)

	w := worker.NewWorker(log)
	if clients.Celo != nil {
		if task, ok := celo.(worker.Task); ok {
			w.Register(task, cfg.CeloPollInterval, envutil.Duration("CELO_POLL_TIMEOUT", 0))
		}
	}

	return Services{
		Store:     st,
		Auth:      auth,
		Credits:   credits,
		Stripe:    services.NewStripeService(log, st, clients.Stripe),
		Coinbase:  services.NewCoinbaseService(log, st, clients.Coinbase, envutil.String("COINBASE_WEBHOOK_SECRET", ""), cfg.FrontendURL),
		Celo:      celo,
		BasePay:   services.NewBasePayService(log, st, cfg.BasePayRecipient),
		Token:     token,
		Transform: transform,
		Creations: creations,
		Photos:    services.NewPhotosService(log, clients.Bucket, transform),
		Grove:     services.NewGroveService(log, clients.Grove),
		Memory:    services.NewMemoryService(log, clients.Memory),
		Worker:    w,
	}, nil
}

