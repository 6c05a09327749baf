package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ghiblify-backend/internal/http/response"
	"github.com/yungbote/ghiblify-backend/internal/services"
)

const defaultJournalLimit = 50

type CreditsHandler struct {
	credits services.CreditsService
}

func NewCreditsHandler(credits services.CreditsService) *CreditsHandler {
	return &CreditsHandler{credits: credits}
}

// Check reports the authenticated wallet's balance.
func (h *CreditsHandler) Check(c *gin.Context) {
	addr := walletAddress(c)
	credits, err := h.credits.Balance(c.Request.Context(), addr)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"address": addr, "credits": credits})
}

// Balance is the unauthenticated lookup by path address.
func (h *CreditsHandler) Balance(c *gin.Context) {
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
	response.RespondOK(c, gin.H{"address": addr, "credits": credits})
}

// Use spends amount (default 1) from the authenticated wallet.
func (h *CreditsHandler) Use(c *gin.Context) {
	var p walletParams
	if err := bindParams(c, &p); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	amount := p.amountOr(1)
	change, err := h.credits.Use(c.Request.Context(), walletAddress(c), amount)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"address": change.Address, "credits": change.NewBalance, "used": amount})
}

// Add is an admin grant. The amount comes from the :credits path segment when
// the route has one.
func (h *CreditsHandler) Add(c *gin.Context) {
	var p walletParams
	if err := bindParams(c, &p); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if raw := c.Param("credits"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_amount", err)
			return
		}
		p.Amount = &n
	}
	address := p.Address
	if address == "" {
		address = c.GetHeader("X-Wallet-Address")
	}
	res, err := h.credits.AdminAdd(c.Request.Context(), address, p.amountOr(0), reasonOr(p.Reason, "API Add Credits"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"address": res.Address, "credits": res.NewBalance, "added": res.AmountAdded})
}

func (h *CreditsHandler) AdminSet(c *gin.Context) {
	var p walletParams
	if err := bindParams(c, &p); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if p.Amount == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_amount", errMissingAmount)
		return
	}
	res, err := h.credits.AdminSet(c.Request.Context(), p.Address, *p.Amount, reasonOr(p.Reason, "Admin Set Credits"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"address": res.Address, "credits": res.NewBalance, "previous": res.OldBalance})
}

func (h *CreditsHandler) AdminBulk(c *gin.Context) {
	var req struct {
		Operations []services.BulkOp `json:"operations"`
		Reason     string            `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	results := h.credits.Bulk(c.Request.Context(), req.Operations, reasonOr(req.Reason, "Bulk Operation"))
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	response.RespondOK(c, gin.H{"results": results, "total": len(results), "failed": failed})
}

func (h *CreditsHandler) AdminJournal(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultJournalLimit)))
	entries, err := h.credits.Journal(c.Request.Context(), c.Param("address"), limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"address": c.Param("address"), "entries": entries})
}

func reasonOr(reason, def string) string {
	if reason == "" {
		return def
	}
	return reason
}
