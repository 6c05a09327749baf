package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ghiblify-backend/internal/http/response"
	"github.com/yungbote/ghiblify-backend/internal/services"
)

// maxUploadBytes bounds a single image upload.
const maxUploadBytes = 20 << 20

type TransformHandler struct {
	transform services.TransformService
}

func NewTransformHandler(transform services.TransformService) *TransformHandler {
	return &TransformHandler{transform: transform}
}

func (h *TransformHandler) Replicate(c *gin.Context) { h.run(c, services.ProviderReplicate) }

func (h *TransformHandler) ComfyUI(c *gin.Context) { h.run(c, services.ProviderComfyUI) }

func (h *TransformHandler) run(c *gin.Context, provider string) {
	_, data, ok := readUpload(c)
	if !ok {
		return
	}
	res, err := h.transform.Transform(c.Request.Context(), services.TransformRequest{
		Address:          walletAddress(c),
		Provider:         provider,
		Image:            data,
		CreationID:       c.PostForm("creation_id"),
		SourceArtifactID: c.PostForm("source_artifact_id"),
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// CreatePrediction is the API key proxy for third party integrations.
func (h *TransformHandler) CreatePrediction(c *gin.Context) {
	var req struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p, err := h.transform.CreatePrediction(c.Request.Context(), req.ImageURL)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, p)
}

func (h *TransformHandler) GetPrediction(c *gin.Context) {
	p, err := h.transform.GetPrediction(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, p)
}

// readUpload reads the multipart "file" field.
func readUpload(c *gin.Context) (string, []byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", fmt.Errorf("file is required: %w", err))
		return "", nil, false
	}
	if fh.Size > maxUploadBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", fmt.Errorf("file exceeds %d bytes", maxUploadBytes))
		return "", nil, false
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_file", err)
		return "", nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_file", err)
		return "", nil, false
	}
	return fh.Filename, data, true
}
