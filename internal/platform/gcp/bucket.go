package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

// BucketCategory separates user uploads from transform outputs.
type BucketCategory string

const (
	BucketCategoryPhoto  BucketCategory = "photo"
	BucketCategoryResult BucketCategory = "result"
)

var ErrObjectNotFound = errors.New("object not found")

func ParseBucketCategory(s string) (BucketCategory, error) {
	switch c := BucketCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case BucketCategoryPhoto, BucketCategoryResult:
		return c, nil
	default:
		return "", fmt.Errorf("unknown bucket category: %s", s)
	}
}

type BucketService interface {
	UploadFile(ctx context.Context, category BucketCategory, key string, file io.Reader) error
	DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error)
	GetPublicURL(category BucketCategory, key string) string
	Mode() ObjectStorageMode
}

type gcsBucket struct {
	name string
	cdn  string
}

type bucketService struct {
	log     *logger.Logger
	client  *storage.Client
	mode    ObjectStorageMode
	buckets map[BucketCategory]gcsBucket
	// publicBase overrides storage.googleapis.com when serving through an
	// emulator or proxy.
	publicBase string
}

func NewBucketServiceWithConfig(log *logger.Logger, cfg ObjectStorageConfig) (BucketService, error) {
	if err := ValidateObjectStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	log = log.With("service", "BucketService")

	publicBase, err := publicBaseURL(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Mode == ObjectStorageModeLocal {
		log.Info("Object storage initialized", "mode", cfg.Mode, "inferred", cfg.Inferred, "local_dir", cfg.LocalDir)
		return newLocalBucketService(cfg.LocalDir, publicBase)
	}

	photos := strings.TrimSpace(os.Getenv("PHOTOS_GCS_BUCKET_NAME"))
	if photos == "" {
		return nil, fmt.Errorf("missing env var PHOTOS_GCS_BUCKET_NAME")
	}
	results := strings.TrimSpace(os.Getenv("RESULTS_GCS_BUCKET_NAME"))
	if results == "" {
		results = photos
	}

	client, err := newStorageClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	log.Info("Object storage initialized",
		"mode", cfg.Mode,
		"inferred", cfg.Inferred,
		"photo_bucket", photos,
		"result_bucket", results,
		"public_base_url", publicBase,
	)
	return &bucketService{
		log:    log,
		client: client,
		mode:   cfg.Mode,
		buckets: map[BucketCategory]gcsBucket{
			BucketCategoryPhoto:  {name: photos, cdn: os.Getenv("PHOTOS_CDN_DOMAIN")},
			BucketCategoryResult: {name: results, cdn: os.Getenv("RESULTS_CDN_DOMAIN")},
		},
		publicBase: publicBase,
	}, nil
}

func newStorageClient(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	if cfg.Mode == ObjectStorageModeGCSEmulator {
		// The storage client reads the emulator endpoint from the environment.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(cfg.EmulatorHost, "/"))
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

// publicBaseURL prefers OBJECT_STORAGE_PUBLIC_BASE_URL, then the emulator host.
func publicBaseURL(cfg ObjectStorageConfig) (string, error) {
	if raw := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_PUBLIC_BASE_URL")); raw != "" {
		if !isAbsoluteURL(raw) {
			return "", fmt.Errorf("invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; want an absolute URL", raw)
		}
		return strings.TrimRight(raw, "/"), nil
	}
	if cfg.Mode == ObjectStorageModeGCSEmulator {
		return strings.TrimRight(cfg.EmulatorHost, "/"), nil
	}
	return "", nil
}

func (bs *bucketService) Mode() ObjectStorageMode { return bs.mode }

func (bs *bucketService) object(category BucketCategory, key string) (*storage.ObjectHandle, error) {
	b, ok := bs.buckets[category]
	if !ok {
		return nil, fmt.Errorf("unknown bucket category: %s", category)
	}
	return bs.client.Bucket(b.name).Object(key), nil
}

func (bs *bucketService) UploadFile(ctx context.Context, category BucketCategory, key string, file io.Reader) error {
	obj, err := bs.object(category, key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := obj.NewWriter(ctx)
	w.ContentType = contentTypeForKey(key)
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s/%s: %w", category, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s/%s: %w", category, key, err)
	}
	return nil
}

func (bs *bucketService) DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error) {
	obj, err := bs.object(category, key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := obj.NewReader(ctx)
	if err != nil {
		cancel()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open %s/%s: %w", category, key, err)
	}
	return &cancelOnClose{ReadCloser: r, cancel: cancel}, nil
}

func (bs *bucketService) GetPublicURL(category BucketCategory, key string) string {
	b, ok := bs.buckets[category]
	if !ok {
		return key
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	switch {
	case b.cdn != "":
		return "https://" + path.Join(b.cdn, key)
	case bs.mode == ObjectStorageModeGCSEmulator && bs.publicBase != "":
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", bs.publicBase, url.PathEscape(b.name), url.PathEscape(key))
	case bs.publicBase != "":
		return fmt.Sprintf("%s/%s/%s", bs.publicBase, b.name, key)
	default:
		return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.name, key)
	}
}

// cancelOnClose ties the download context to the reader's lifetime.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}

func contentTypeForKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if i := strings.IndexByte(k, '?'); i >= 0 {
		k = k[:i]
	}
	switch path.Ext(k) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	return "application/octet-stream"
}
