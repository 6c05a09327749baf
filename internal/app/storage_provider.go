package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/ghiblify-backend/internal/platform/gcp"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

var newBucketServiceWithConfig = gcp.NewBucketServiceWithConfig

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

// StorageProviderBootstrapError explains why photo storage could not start.
type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v", e.Code, e.Mode, e.EmulatorHost, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

var configErrorCodes = map[gcp.ObjectStorageConfigErrorCode]StorageProviderBootstrapErrorCode{
	gcp.ObjectStorageConfigErrorInvalidMode:         StorageProviderBootstrapErrorInvalidMode,
	gcp.ObjectStorageConfigErrorMissingEmulatorHost: StorageProviderBootstrapErrorMissingEmulatorHost,
	gcp.ObjectStorageConfigErrorInvalidEmulatorHost: StorageProviderBootstrapErrorInvalidEmulatorHost,
}

func storageConfig(cfg Config) gcp.ObjectStorageConfig {
	return gcp.ObjectStorageConfig{
		Mode:         gcp.ObjectStorageMode(strings.ToLower(strings.TrimSpace(cfg.ObjectStorageMode))),
		EmulatorHost: strings.TrimSpace(cfg.StorageEmulatorHost),
		LocalDir:     strings.TrimSpace(cfg.StorageLocalDir),
		Inferred:     cfg.StorageModeInferred,
	}
}

// resolveBucketService builds the photo/result bucket. Callers treat an error
// as "storage disabled" rather than fatal.
func resolveBucketService(log *logger.Logger, cfg Config) (gcp.BucketService, error) {
	storageCfg := storageConfig(cfg)
	if storageCfg.LocalDir == "" {
		storageCfg.LocalDir = gcp.DefaultLocalDir
	}
	fields := []interface{}{
		"mode", storageCfg.Mode,
		"inferred", storageCfg.Inferred,
		"emulator_host", storageCfg.EmulatorHost,
	}

	if !gcp.IsSupportedObjectStorageMode(storageCfg.Mode) {
		err := newStorageBootstrapError(storageCfg, StorageProviderBootstrapErrorInvalidMode,
			fmt.Errorf("unsupported object storage mode %q", storageCfg.Mode))
		log.Error("Object storage provider selection failed", append(fields, "error_code", err.Code, "error", err)...)
		return nil, err
	}

	log.Info("Selecting object storage provider", fields...)
	bucket, err := newBucketServiceWithConfig(log, storageCfg)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error("Object storage provider bootstrap failed", append(fields, "error_code", storageProviderBootstrapErrorCode(classified), "error", classified)...)
		return nil, classified
	}
	return bucket, nil
}

func newStorageBootstrapError(storageCfg gcp.ObjectStorageConfig, code StorageProviderBootstrapErrorCode, cause error) *StorageProviderBootstrapError {
	return &StorageProviderBootstrapError{
		Code:         code,
		Mode:         string(storageCfg.Mode),
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        cause,
	}
}

func classifyStorageProviderBootstrapError(storageCfg gcp.ObjectStorageConfig, err error) error {
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		if code, ok := configErrorCodes[cfgErr.Code]; ok {
			return newStorageBootstrapError(storageCfg, code, err)
		}
	}
	return newStorageBootstrapError(storageCfg, StorageProviderBootstrapErrorConnectFailed, err)
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return StorageProviderBootstrapErrorConnectFailed
}
