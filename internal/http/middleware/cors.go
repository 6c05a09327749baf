package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"https://ghiblify-it.vercel.app",
	"https://ghiblify.vercel.app",
	"https://ghiblify.onrender.com",
}

// vercelPreviews covers every preview deployment of the frontend.
const vercelPreviews = "https://*.vercel.app"

func CORS(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}
	allowed := append(append([]string(nil), origins...), vercelPreviews)
	return cors.New(cors.Config{
		AllowOrigins:  allowed,
		AllowWildcard: true,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders: []string{
			"Authorization", "Content-Type", "X-Requested-With",
			headerWalletAddress, headerAdminKey, headerAPIKey,
			"Stripe-Signature", "X-CC-Webhook-Signature",
			headerRequestID, headerTraceID,
		},
		ExposeHeaders:    []string{headerRequestID, headerTraceID},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	})
}
