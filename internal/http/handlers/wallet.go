package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ghiblify-backend/internal/domain/wallet"
	"github.com/yungbote/ghiblify-backend/internal/http/response"
	"github.com/yungbote/ghiblify-backend/internal/services"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

type WalletHandler struct {
	credits services.CreditsService
	store   store.Store
}

func NewWalletHandler(credits services.CreditsService, st store.Store) *WalletHandler {
	return &WalletHandler{credits: credits, store: st}
}

// Connect registers a wallet from any provider (RainbowKit, Base Account,
// Farcaster) with a zero balance if it is new.
func (h *WalletHandler) Connect(c *gin.Context) {
	var p walletParams
	if err := bindParams(c, &p); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	addr, err := services.ValidateAddress(p.Address)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	credits, err := h.credits.Ensure(c.Request.Context(), addr)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var provider any
	if p.Provider != "" {
		provider = p.Provider
	}
	response.RespondOK(c, gin.H{
		"address":  addr,
		"credits":  credits,
		"provider": provider,
		"status":   "connected",
	})
}

func (h *WalletHandler) Status(c *gin.Context) {
	addr, err := services.ValidateAddress(c.Param("address"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	credits, err := h.credits.Balance(c.Request.Context(), addr)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"address": addr,
		"credits": credits,
		"status":  wallet.Status(credits),
	})
}

func (h *WalletHandler) Health(c *gin.Context) {
	st := h.store.Status(c.Request.Context())
	if !st.Available {
		response.RespondError(c, http.StatusServiceUnavailable, "unhealthy", errors.New("Service unhealthy: "+st.Error))
		return
	}
	backend := "connected"
	if st.StorageMode == store.ModeMemory {
		backend = "memory_fallback"
	}
	response.RespondOK(c, gin.H{
		"status":    "healthy",
		"service":   "unified-wallet",
		"redis":     backend,
		"timestamp": time.Now().Unix(),
	})
}
