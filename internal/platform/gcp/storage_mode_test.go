package gcp

import (
	"errors"
	"testing"
)

func setStorageEnv(t *testing.T, mode, emulator, photos string) {
	t.Helper()
	t.Setenv("OBJECT_STORAGE_MODE", mode)
	t.Setenv("STORAGE_EMULATOR_HOST", emulator)
	t.Setenv("PHOTOS_GCS_BUCKET_NAME", photos)
	t.Setenv("LOCAL_STORAGE_DIR", "")
}

func TestResolveObjectStorageConfigFromEnv(t *testing.T) {
	cases := []struct {
		name                   string
		mode, emulator, photos string
		want                   ObjectStorageMode
		inferred               bool
	}{
		{name: "inferred local", want: ObjectStorageModeLocal, inferred: true},
		{name: "inferred gcs", photos: "photos", want: ObjectStorageModeGCS, inferred: true},
		{name: "inferred emulator", emulator: "http://fake-gcs:4443", photos: "photos", want: ObjectStorageModeGCSEmulator, inferred: true},
		{name: "explicit gcs wins over emulator host", mode: "GCS", emulator: "http://fake-gcs:4443", want: ObjectStorageModeGCS},
		{name: "explicit emulator", mode: "gcs_emulator", emulator: "http://fake-gcs:4443", want: ObjectStorageModeGCSEmulator},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setStorageEnv(t, tc.mode, tc.emulator, tc.photos)
			cfg, err := ResolveObjectStorageConfigFromEnv()
			if err != nil {
				t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
			}
			if cfg.Mode != tc.want {
				t.Fatalf("mode: want=%q got=%q", tc.want, cfg.Mode)
			}
			if cfg.Inferred != tc.inferred {
				t.Fatalf("inferred: want=%v got=%v", tc.inferred, cfg.Inferred)
			}
			if cfg.LocalDir != DefaultLocalDir {
				t.Fatalf("local dir: want=%q got=%q", DefaultLocalDir, cfg.LocalDir)
			}
		})
	}
}

func TestResolveObjectStorageConfigFromEnvErrors(t *testing.T) {
	cases := []struct {
		name           string
		mode, emulator string
		want           ObjectStorageConfigErrorCode
	}{
		{name: "unknown mode", mode: "s3", want: ObjectStorageConfigErrorInvalidMode},
		{name: "missing emulator host", mode: "gcs_emulator", want: ObjectStorageConfigErrorMissingEmulatorHost},
		{name: "relative emulator host", mode: "gcs_emulator", emulator: "fake-gcs:4443", want: ObjectStorageConfigErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setStorageEnv(t, tc.mode, tc.emulator, "")
			_, err := ResolveObjectStorageConfigFromEnv()
			var cfgErr *ObjectStorageConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("want ObjectStorageConfigError got=%v", err)
			}
			if cfgErr.Code != tc.want {
				t.Fatalf("code: want=%q got=%q", tc.want, cfgErr.Code)
			}
		})
	}
}
