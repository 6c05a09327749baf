package app

import (
	httpserver "github.com/yungbote/ghiblify-backend/internal/http"
	httpH "github.com/yungbote/ghiblify-backend/internal/http/handlers"
	httpMW "github.com/yungbote/ghiblify-backend/internal/http/middleware"
	"github.com/yungbote/ghiblify-backend/internal/observability"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health    *httpH.HealthHandler
	Web3      *httpH.Web3Handler
	Credits   *httpH.CreditsHandler
	Wallet    *httpH.WalletHandler
	Stripe    *httpH.StripeHandler
	Coinbase  *httpH.CoinbaseHandler
	Celo      *httpH.CeloHandler
	BasePay   *httpH.BasePayHandler
	Token     *httpH.TokenHandler
	Transform *httpH.TransformHandler
	Creations *httpH.CreationsHandler
	Memory    *httpH.MemoryHandler
	Grove     *httpH.GroveHandler
	Photos    *httpH.PhotosHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    httpH.NewHealthHandler(),
		Web3:      httpH.NewWeb3Handler(services.Auth, services.Store),
		Credits:   httpH.NewCreditsHandler(services.Credits),
		Wallet:    httpH.NewWalletHandler(services.Credits, services.Store),
		Stripe:    httpH.NewStripeHandler(services.Stripe),
		Coinbase:  httpH.NewCoinbaseHandler(services.Coinbase),
		Celo:      httpH.NewCeloHandler(services.Celo),
		BasePay:   httpH.NewBasePayHandler(services.BasePay),
		Token:     httpH.NewTokenHandler(services.Token),
		Transform: httpH.NewTransformHandler(services.Transform),
		Creations: httpH.NewCreationsHandler(services.Creations),
		Memory:    httpH.NewMemoryHandler(services.Memory),
		Grove:     httpH.NewGroveHandler(services.Grove),
		Photos:    httpH.NewPhotosHandler(services.Photos),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth, httpMW.AuthMiddlewareConfig{
			AllowHeaderWallet: cfg.AllowHeaderWallet,
			AdminKey:          cfg.AdminKey,
			APIKey:            cfg.APIKey,
		}),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *httpserver.Server {
	var traced string
	if cfg.Otel.Enabled {
		traced = cfg.Otel.ServiceName
	}
	return httpserver.NewServer(httpserver.RouterConfig{
		Log:              log,
		Metrics:          observability.Current(),
		ServiceName:      traced,
		AllowedOrigins:   cfg.AllowedOrigins,
		AuthMiddleware:   middleware.Auth,
		HealthHandler:    handlers.Health,
		Web3Handler:      handlers.Web3,
		CreditsHandler:   handlers.Credits,
		WalletHandler:    handlers.Wallet,
		StripeHandler:    handlers.Stripe,
		CoinbaseHandler:  handlers.Coinbase,
		CeloHandler:      handlers.Celo,
		BasePayHandler:   handlers.BasePay,
		TokenHandler:     handlers.Token,
		TransformHandler: handlers.Transform,
		CreationsHandler: handlers.Creations,
		MemoryHandler:    handlers.Memory,
		GroveHandler:     handlers.Grove,
		PhotosHandler:    handlers.Photos,
	})
}
