package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ghiblify-backend/internal/http/response"
	"github.com/yungbote/ghiblify-backend/internal/services"
)

type GroveHandler struct {
	grove services.GroveService
}

func NewGroveHandler(grove services.GroveService) *GroveHandler {
	return &GroveHandler{grove: grove}
}

func (h *GroveHandler) Upload(c *gin.Context) {
	var req services.GroveUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.grove.Upload(c.Request.Context(), walletAddress(c), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

type PhotosHandler struct {
	photos services.PhotosService
}

func NewPhotosHandler(photos services.PhotosService) *PhotosHandler {
	return &PhotosHandler{photos: photos}
}

func (h *PhotosHandler) Upload(c *gin.Context) {
	name, data, ok := readUpload(c)
	if !ok {
		return
	}
	res, err := h.photos.Upload(c.Request.Context(), walletAddress(c), name, data)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// Get serves a legacy upload by file name.
func (h *PhotosHandler) Get(c *gin.Context) {
	h.serve(c, "photo", c.Param("name"))
}

// Serve streams any stored object; name may contain slashes.
func (h *PhotosHandler) Serve(c *gin.Context) {
	h.serve(c, c.Param("category"), c.Param("name"))
}

func (h *PhotosHandler) serve(c *gin.Context, category, name string) {
	rc, contentType, err := h.photos.Open(c.Request.Context(), category, name)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	defer rc.Close()
	c.Header("Cache-Control", "public, max-age=86400")
	c.Status(http.StatusOK)
	c.Header("Content-Type", contentType)
	_, _ = io.Copy(c.Writer, rc)
}
