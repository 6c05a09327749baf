package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// localBucketService keeps objects under <root>/<category>/<key>. Objects are
// served back by the API at /api/photos/<category>/<key>.
type localBucketService struct {
	root          string
	publicBaseURL string
}

func newLocalBucketService(root, publicBaseURL string) (BucketService, error) {
	if strings.TrimSpace(root) == "" {
		root = DefaultLocalDir
	}
	for _, c := range []BucketCategory{BucketCategoryPhoto, BucketCategoryResult} {
		if err := os.MkdirAll(filepath.Join(root, string(c)), 0o755); err != nil {
			return nil, fmt.Errorf("create local storage dir: %w", err)
		}
	}
	return &localBucketService{root: root, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (l *localBucketService) Mode() ObjectStorageMode { return ObjectStorageModeLocal }

func (l *localBucketService) path(category BucketCategory, key string) (string, error) {
	if _, err := ParseBucketCategory(string(category)); err != nil {
		return "", err
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.root, string(category), clean), nil
}

func (l *localBucketService) UploadFile(_ context.Context, category BucketCategory, key string, file io.Reader) error {
	p, err := l.path(category, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write local object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (l *localBucketService) DownloadFile(_ context.Context, category BucketCategory, key string) (io.ReadCloser, error) {
	p, err := l.path(category, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return f, err
}

func (l *localBucketService) GetPublicURL(category BucketCategory, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	return fmt.Sprintf("%s/api/photos/%s/%s", l.publicBaseURL, category, key)
}
