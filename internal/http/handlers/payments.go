package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ghiblify-backend/internal/http/response"
	"github.com/yungbote/ghiblify-backend/internal/services"
)

// maxWebhookBody bounds provider webhook payloads.
const maxWebhookBody = 1 << 20

func readWebhookBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return nil, false
	}
	return body, true
}

type StripeHandler struct {
	stripe services.StripeService
}

func NewStripeHandler(stripe services.StripeService) *StripeHandler {
	return &StripeHandler{stripe: stripe}
}

func (h *StripeHandler) Webhook(c *gin.Context) {
	payload, ok := readWebhookBody(c)
	if !ok {
		return
	}
	res, err := h.stripe.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *StripeHandler) Session(c *gin.Context) {
	res, err := h.stripe.SessionStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *StripeHandler) CreateCheckoutSession(c *gin.Context) {
	var p walletParams
	if err := bindParams(c, &p); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.stripe.CreateCheckoutSession(c.Request.Context(), c.Param("tier"), addressOr(c, p.Address))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *StripeHandler) Pricing(c *gin.Context) {
	response.RespondOK(c, h.stripe.Pricing())
}

type CoinbaseHandler struct {
	coinbase services.CoinbaseService
}

func NewCoinbaseHandler(coinbase services.CoinbaseService) *CoinbaseHandler {
	return &CoinbaseHandler{coinbase: coinbase}
}

func (h *CoinbaseHandler) CreateCharge(c *gin.Context) {
	var p walletParams
	if err := bindParams(c, &p); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.coinbase.CreateCharge(c.Request.Context(), c.Param("tier"), addressOr(c, p.Address))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *CoinbaseHandler) Webhook(c *gin.Context) {
	body, ok := readWebhookBody(c)
	if !ok {
		return
	}
	res, err := h.coinbase.HandleWebhook(c.Request.Context(), body, c.GetHeader("X-CC-Webhook-Signature"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *CoinbaseHandler) Pricing(c *gin.Context) {
	response.RespondOK(c, h.coinbase.Pricing())
}

type CeloHandler struct {
	celo services.CeloService
}

func NewCeloHandler(celo services.CeloService) *CeloHandler {
	return &CeloHandler{celo: celo}
}

func (h *CeloHandler) CheckPayment(c *gin.Context) {
	res, err := h.celo.CheckPayment(c.Request.Context(), c.Param("tx"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *CeloHandler) PurchaseHistory(c *gin.Context) {
	purchases, err := h.celo.PurchaseHistory(c.Request.Context(), addressOr(c, c.Query("address")))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"purchases": purchases})
}

func (h *CeloHandler) ProcessPendingEvents(c *gin.Context) {
	res, err := h.celo.ProcessPendingEvents(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *CeloHandler) Pricing(c *gin.Context) {
	response.RespondOK(c, h.celo.Pricing())
}

type BasePayHandler struct {
	basePay services.BasePayService
}

func NewBasePayHandler(basePay services.BasePayService) *BasePayHandler {
	return &BasePayHandler{basePay: basePay}
}

func (h *BasePayHandler) ProcessPayment(c *gin.Context) {
	var req services.BasePayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.basePay.ProcessPayment(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *BasePayHandler) CheckPayment(c *gin.Context) {
	res, err := h.basePay.CheckPayment(c.Request.Context(), c.Param("id"), c.Query("address"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *BasePayHandler) History(c *gin.Context) {
	txs, err := h.basePay.History(c.Request.Context(), c.Param("address"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"transactions": txs})
}

func (h *BasePayHandler) Pricing(c *gin.Context) {
	response.RespondOK(c, h.basePay.Pricing())
}

type TokenHandler struct {
	token services.TokenPaymentService
}

func NewTokenHandler(token services.TokenPaymentService) *TokenHandler {
	return &TokenHandler{token: token}
}

func (h *TokenHandler) ProcessPayment(c *gin.Context) {
	var req services.TokenPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.token.ProcessPayment(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *TokenHandler) CheckPayment(c *gin.Context) {
	res, err := h.token.CheckPayment(c.Request.Context(), c.Param("id"), c.Query("address"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *TokenHandler) History(c *gin.Context) {
	txs, err := h.token.History(c.Request.Context(), c.Param("address"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"transactions": txs})
}

func (h *TokenHandler) Pricing(c *gin.Context) {
	response.RespondOK(c, h.token.Pricing())
}
