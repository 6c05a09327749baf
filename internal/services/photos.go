package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/gcp"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

type PhotoUploadResult struct {
	Message string `json:"message"`
	Result  string `json:"result"`
	URL     string `json:"url,omitempty"`
	Credits int64  `json:"credits"`
}

// PhotosService backs the named-photo endpoints: an upload is stored under
// "<address>/<file name>", transformed, and the result replaces it.
type PhotosService interface {
	Upload(ctx context.Context, address, name string, data []byte) (*PhotoUploadResult, error)
	Open(ctx context.Context, category, name string) (io.ReadCloser, string, error)
}

type photosService struct {
	log       *logger.Logger
	bucket    gcp.BucketService
	transform TransformService
}

func NewPhotosService(log *logger.Logger, bucket gcp.BucketService, transform TransformService) PhotosService {
	return &photosService{log: log.With("service", "PhotosService"), bucket: bucket, transform: transform}
}

func photoName(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", apierr.BadRequest("invalid_name", "A file name is required")
	}
	return name, nil
}

func (s *photosService) Upload(ctx context.Context, address, name string, data []byte) (*PhotoUploadResult, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	name, err = photoName(name)
	if err != nil {
		return nil, err
	}
	if s.bucket == nil {
		return nil, apierr.Newf(http.StatusServiceUnavailable, "storage_unavailable", "Object storage is not configured")
	}
	// uploads are namespaced per wallet
	key := addr + "/" + name
	if err := s.bucket.UploadFile(ctx, gcp.BucketCategoryPhoto, key, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}
	res, err := s.transform.Transform(ctx, TransformRequest{Address: addr, Provider: ProviderReplicate, Image: data})
	if err != nil {
		return nil, err
	}
	// the stored photo becomes the processed version
	if err := s.bucket.UploadFile(ctx, gcp.BucketCategoryPhoto, key, bytes.NewReader(res.ResultPNG())); err != nil {
		s.log.Warn("Replacing photo with result failed", "key", key, "error", err)
	}
	return &PhotoUploadResult{
		Message: res.Message,
		Result:  res.Result,
		URL:     s.bucket.GetPublicURL(gcp.BucketCategoryPhoto, key),
		Credits: res.Credits,
	}, nil
}

func (s *photosService) Open(ctx context.Context, category, name string) (io.ReadCloser, string, error) {
	cat, err := gcp.ParseBucketCategory(category)
	if err != nil {
		return nil, "", apierr.NotFound("photo_not_found", "Photo not found")
	}
	if s.bucket == nil {
		return nil, "", apierr.NotFound("photo_not_found", "Photo not found")
	}
	key := strings.TrimLeft(name, "/")
	if key == "" || strings.Contains(key, "..") {
		return nil, "", apierr.NotFound("photo_not_found", "Photo not found")
	}
	rc, err := s.bucket.DownloadFile(ctx, cat, key)
	if errors.Is(err, gcp.ErrObjectNotFound) {
		return nil, "", apierr.NotFound("photo_not_found", "Photo not found")
	}
	if err != nil {
		return nil, "", fmt.Errorf("open photo: %w", err)
	}
	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return rc, ct, nil
}
