package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ghiblify-backend/internal/http/response"
	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/services"
)

type CreationsHandler struct {
	creations services.CreationsService
}

func NewCreationsHandler(creations services.CreationsService) *CreationsHandler {
	return &CreationsHandler{creations: creations}
}

func (h *CreationsHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultCreationsPage)))
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_limit", "limit must be an integer"))
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_offset", "offset must be an integer"))
		return
	}
	page, err := h.creations.List(c.Request.Context(), addressOr(c, c.Query("address")), limit, offset)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, page)
}

func (h *CreationsHandler) Get(c *gin.Context) {
	creation, err := h.creations.Get(c.Request.Context(), addressOr(c, c.Query("address")), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if creation == nil {
		response.RespondAPIError(c, apierr.NotFound("creation_not_found", "Creation not found"))
		return
	}
	response.RespondOK(c, creation)
}
