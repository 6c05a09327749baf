package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/ghiblify-backend/internal/http/handlers"
	httpMW "github.com/yungbote/ghiblify-backend/internal/http/middleware"
	"github.com/yungbote/ghiblify-backend/internal/observability"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AllowedOrigins []string
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler    *httpH.HealthHandler
	Web3Handler      *httpH.Web3Handler
	CreditsHandler   *httpH.CreditsHandler
	WalletHandler    *httpH.WalletHandler
	StripeHandler    *httpH.StripeHandler
	CoinbaseHandler  *httpH.CoinbaseHandler
	CeloHandler      *httpH.CeloHandler
	BasePayHandler   *httpH.BasePayHandler
	TokenHandler     *httpH.TokenHandler
	TransformHandler *httpH.TransformHandler
	CreationsHandler *httpH.CreationsHandler
	MemoryHandler    *httpH.MemoryHandler
	GroveHandler     *httpH.GroveHandler
	PhotosHandler    *httpH.PhotosHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Without an AuthMiddleware every guarded route is left unregistered.
	wallet, admin, apiKey := guards(cfg.AuthMiddleware)

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/health", cfg.HealthHandler.Health)
	}

	api := r.Group("/api")

	// Sign-in with Ethereum + legacy credit routes
	if cfg.Web3Handler != nil {
		web3 := api.Group("/web3")
		web3.GET("/auth/nonce", cfg.Web3Handler.Nonce)
		web3.POST("/auth/verify", cfg.Web3Handler.Verify)
		web3.POST("/login", cfg.Web3Handler.Login)
		web3.GET("/status", cfg.Web3Handler.Status)
		if cfg.CreditsHandler != nil {
			handle(web3, "GET", "/credits/check", wallet, cfg.CreditsHandler.Check)
			handle(web3, "POST", "/credits/use", wallet, cfg.CreditsHandler.Use)
			handle(web3, "POST", "/credits/add", admin, cfg.CreditsHandler.Add)
		}
	}

	// Unified wallet
	if cfg.WalletHandler != nil {
		w := api.Group("/wallet")
		w.POST("/connect", cfg.WalletHandler.Connect)
		w.GET("/status/:address", cfg.WalletHandler.Status)
		w.GET("/health", cfg.WalletHandler.Health)
		if cfg.CreditsHandler != nil {
			w.GET("/credits/:address", cfg.CreditsHandler.Balance)
			handle(w, "POST", "/credits/add", admin, cfg.CreditsHandler.Add)
			handle(w, "POST", "/credits/use", wallet, cfg.CreditsHandler.Use)
			handle(w, "POST", "/admin/credits/set", admin, cfg.CreditsHandler.AdminSet)
			handle(w, "POST", "/admin/credits/bulk", admin, cfg.CreditsHandler.AdminBulk)
			handle(w, "GET", "/admin/credits/journal/:address", admin, cfg.CreditsHandler.AdminJournal)
		}
	}

	if cfg.CreditsHandler != nil {
		credits := api.Group("/credits")
		handle(credits, "GET", "/check", wallet, cfg.CreditsHandler.Check)
		handle(credits, "POST", "/use", wallet, cfg.CreditsHandler.Use)
		handle(credits, "POST", "/add/:credits", admin, cfg.CreditsHandler.Add)
	}

	// Payments
	if cfg.StripeHandler != nil {
		s := api.Group("/stripe")
		s.POST("/webhook", cfg.StripeHandler.Webhook)
		s.GET("/session/:id", cfg.StripeHandler.Session)
		s.POST("/create-checkout-session/:tier", optional(cfg.AuthMiddleware), cfg.StripeHandler.CreateCheckoutSession)
		s.GET("/pricing", cfg.StripeHandler.Pricing)
	}
	if cfg.CoinbaseHandler != nil {
		p := api.Group("/payments")
		p.POST("/create-charge/:tier", optional(cfg.AuthMiddleware), cfg.CoinbaseHandler.CreateCharge)
		p.POST("/webhook/coinbase", cfg.CoinbaseHandler.Webhook)
		p.GET("/pricing", cfg.CoinbaseHandler.Pricing)
	}
	if cfg.CeloHandler != nil {
		celo := api.Group("/celo")
		celo.GET("/check-payment/:tx", cfg.CeloHandler.CheckPayment)
		celo.GET("/purchase-history", cfg.CeloHandler.PurchaseHistory)
		celo.POST("/process-pending-events", cfg.CeloHandler.ProcessPendingEvents)
		celo.GET("/pricing", cfg.CeloHandler.Pricing)
	}
	if cfg.BasePayHandler != nil {
		bp := api.Group("/base-pay")
		bp.POST("/process-payment", cfg.BasePayHandler.ProcessPayment)
		bp.GET("/check-payment/:id", cfg.BasePayHandler.CheckPayment)
		bp.GET("/history/:address", cfg.BasePayHandler.History)
		bp.GET("/pricing", cfg.BasePayHandler.Pricing)
	}
	if cfg.TokenHandler != nil {
		tk := api.Group("/ghiblify-token")
		tk.POST("/process-payment", cfg.TokenHandler.ProcessPayment)
		tk.GET("/check-payment/:id", cfg.TokenHandler.CheckPayment)
		tk.GET("/history/:address", cfg.TokenHandler.History)
		tk.GET("/pricing", cfg.TokenHandler.Pricing)
	}

	// Image transforms
	if cfg.TransformHandler != nil {
		handle(api, "POST", "/replicate", wallet, cfg.TransformHandler.Replicate)
		handle(api, "POST", "/comfyui", wallet, cfg.TransformHandler.ComfyUI)
		handle(api, "POST", "/ghiblify", apiKey, cfg.TransformHandler.CreatePrediction)
		handle(api, "GET", "/ghiblify/:id", apiKey, cfg.TransformHandler.GetPrediction)
	}

	if cfg.CreationsHandler != nil {
		api.GET("/creations", optional(cfg.AuthMiddleware), cfg.CreationsHandler.List)
		api.GET("/creations/:id", optional(cfg.AuthMiddleware), cfg.CreationsHandler.Get)
	}

	// Memory API
	if cfg.MemoryHandler != nil {
		mem := api.Group("/memory")
		mem.GET("/status", cfg.MemoryHandler.Status)
		mem.POST("/identity-graph", cfg.MemoryHandler.IdentityGraph)
		mem.POST("/social-graph", cfg.MemoryHandler.SocialGraph)
		mem.POST("/unified-profile", cfg.MemoryHandler.UnifiedProfile)
		mem.GET("/wallet-address/:username", cfg.MemoryHandler.WalletAddress)
	}

	if cfg.GroveHandler != nil {
		handle(api, "POST", "/grove/upload", wallet, cfg.GroveHandler.Upload)
	}

	if cfg.PhotosHandler != nil {
		handle(api, "POST", "/upload_photo", wallet, cfg.PhotosHandler.Upload)
		api.GET("/get_photo/*name", cfg.PhotosHandler.Get)
		api.GET("/photos/:category/*name", cfg.PhotosHandler.Serve)
	}

	return r
}

func guards(am *httpMW.AuthMiddleware) (wallet, admin, apiKey gin.HandlerFunc) {
	if am == nil {
		return nil, nil, nil
	}
	return am.RequireWallet(), am.RequireAdminKey(), am.RequireAPIKey()
}

// optional attaches the wallet when a session is presented and otherwise lets
// the request through.
func optional(am *httpMW.AuthMiddleware) gin.HandlerFunc {
	if am == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return am.OptionalWallet()
}

func handle(g *gin.RouterGroup, method, path string, guard gin.HandlerFunc, h gin.HandlerFunc) {
	if guard == nil {
		return
	}
	g.Handle(method, path, guard, h)
}
