package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ghiblify-backend/internal/http/response"
	"github.com/yungbote/ghiblify-backend/internal/services"
)

type MemoryHandler struct {
	memory services.MemoryService
}

func NewMemoryHandler(memory services.MemoryService) *MemoryHandler {
	return &MemoryHandler{memory: memory}
}

type identityRequest struct {
	Identifier     string `json:"identifier"`
	IdentifierType string `json:"identifier_type"`
}

func (h *MemoryHandler) Status(c *gin.Context) {
	response.RespondOK(c, h.memory.Status())
}

func (h *MemoryHandler) IdentityGraph(c *gin.Context) {
	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.memory.IdentityGraph(c.Request.Context(), req.Identifier, req.IdentifierType)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *MemoryHandler) SocialGraph(c *gin.Context) {
	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.memory.SocialGraph(c.Request.Context(), req.Identifier, req.IdentifierType)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *MemoryHandler) UnifiedProfile(c *gin.Context) {
	var req struct {
		Address           string `json:"address"`
		FarcasterUsername string `json:"farcaster_username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.memory.UnifiedProfile(c.Request.Context(), req.Address, req.FarcasterUsername)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *MemoryHandler) WalletAddress(c *gin.Context) {
	res, err := h.memory.WalletForFarcaster(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}
