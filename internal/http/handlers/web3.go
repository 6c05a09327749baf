package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ghiblify-backend/internal/http/response"
	"github.com/yungbote/ghiblify-backend/internal/services"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

type Web3Handler struct {
	authService services.AuthService
	store       store.Store
}

func NewWeb3Handler(authService services.AuthService, st store.Store) *Web3Handler {
	return &Web3Handler{authService: authService, store: st}
}

// Nonce is plain text so SIWE libraries can embed it verbatim.
func (h *Web3Handler) Nonce(c *gin.Context) {
	nonce, err := h.authService.Nonce(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.String(http.StatusOK, nonce)
}

func (h *Web3Handler) Verify(c *gin.Context) {
	var req services.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.authService.Verify(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *Web3Handler) Login(c *gin.Context) {
	var p walletParams
	if err := bindParams(c, &p); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	addr, credits, err := h.authService.Login(c.Request.Context(), p.Address)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"address": addr, "credits": credits})
}

func (h *Web3Handler) Status(c *gin.Context) {
	response.RespondOK(c, h.store.Status(c.Request.Context()))
}
