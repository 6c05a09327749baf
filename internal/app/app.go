package app

import (
	"context"
	"fmt"
	"net"
	"time"

	httpserver "github.com/yungbote/ghiblify-backend/internal/http"
	"github.com/yungbote/ghiblify-backend/internal/observability"
	"github.com/yungbote/ghiblify-backend/internal/platform/envutil"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Services Services
	Server   *httpserver.Server

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	observability.Init(log)
	otelShutdown := observability.InitOTel(context.Background(), log, cfg.Otel)

	clients, err := wireClients(context.Background(), log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	serviceset, err := wireServices(log, cfg, clients)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, serviceset)
	middleware := wireMiddleware(log, cfg, serviceset)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Services:     serviceset,
		Server:       wireServer(log, cfg, handlerset, middleware),
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background work: the CELO poller and the metrics endpoint.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.Worker != nil {
		a.Services.Worker.Start(ctx)
	}
	if m := observability.Current(); m != nil {
		m.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		if a.Clients.Redis != nil {
			m.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
		}
	}
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := net.JoinHostPort(envutil.String("HOST", "0.0.0.0"), a.Cfg.Port)
	a.Log.Info("Starting HTTP server", "addr", addr, "storage", a.Services.Store.Mode())
	return a.Server.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.Server.Shutdown(ctx); err != nil {
		a.Log.Warn("HTTP shutdown", "error", err)
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		if a.Services.Worker != nil {
			a.Services.Worker.Wait()
		}
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	a.Clients.Close()
	a.Log.Sync()
}
