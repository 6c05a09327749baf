package services

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/ghiblify-backend/internal/pkg/httpx"
	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/grove"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

// GroveUploadRequest carries a base64 image (optionally a data URL) or, with
// IsBase64 false, a URL to fetch.
type GroveUploadRequest struct {
	ImageData string `json:"image_data"`
	IsBase64  *bool  `json:"is_base64"`
}

type GroveUploadResult struct {
	Success    bool   `json:"success"`
	GatewayURL string `json:"gateway_url,omitempty"`
	URI        string `json:"uri,omitempty"`
	Error      string `json:"error,omitempty"`
}

type GroveService interface {
	Upload(ctx context.Context, address string, req GroveUploadRequest) (*GroveUploadResult, error)
}

type groveService struct {
	log    *logger.Logger
	client grove.Client
	hc     *http.Client
}

func NewGroveService(log *logger.Logger, client grove.Client) GroveService {
	return &groveService{
		log:    log.With("service", "GroveService"),
		client: client,
		hc:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *groveService) Upload(ctx context.Context, address string, req GroveUploadRequest) (*GroveUploadResult, error) {
	if strings.TrimSpace(req.ImageData) == "" {
		return nil, apierr.BadRequest("missing_image", "image_data is required")
	}
	var (
		data        []byte
		contentType string
		err         error
	)
	if req.IsBase64 == nil || *req.IsBase64 {
		data, contentType, err = decodeImageData(req.ImageData)
		if err != nil {
			return nil, apierr.BadRequest("invalid_base64", "Invalid base64 image data: %v", err)
		}
	} else {
		data, err = httpx.Download(ctx, s.hc, req.ImageData, nil, 0)
		if err != nil {
			return nil, apierr.BadRequest("fetch_failed", "Failed to fetch image from URL: %v", err)
		}
		contentType = http.DetectContentType(data)
	}

	res, err := s.client.Upload(ctx, data, contentType)
	if err != nil {
		s.log.Error("Grove upload failed", "address", address, "error", err)
		var se *httpx.StatusError
		if errors.As(err, &se) && se.StatusCode >= 400 {
			return nil, apierr.Newf(se.StatusCode, "grove_upload_failed", "Grove upload failed: %s", se.Body)
		}
		return nil, apierr.Newf(http.StatusInternalServerError, "grove_upload_failed", "Error during Grove upload: %v", err)
	}
	s.log.Info("Uploaded to Grove", "address", address, "uri", res.URI, "bytes", len(data))
	return &GroveUploadResult{Success: true, GatewayURL: res.GatewayURL, URI: res.URI}, nil
}

// decodeImageData accepts "data:<type>;base64,<payload>" or bare base64,
// which is assumed to be PNG.
func decodeImageData(s string) ([]byte, string, error) {
	contentType := "image/png"
	if i := strings.Index(s, "base64,"); i >= 0 {
		if head := s[:i]; strings.HasPrefix(head, "data:") {
			if ct := strings.TrimSuffix(strings.TrimPrefix(head, "data:"), ";"); ct != "" {
				contentType = ct
			}
		}
		s = s[i+len("base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}
