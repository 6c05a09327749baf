package services

import (
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

const (
	alice = "0x52908400098527886e0f7030069857d2e4169ee7"
	bob   = "0x8617e340b3d01fa5f11f306f4090fd50e238070d"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return store.NewRedisStore(logger.Nop(), rdb)
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("error: want apierr with status %d got=%v", status, err)
	}
	if got, _ := apierr.From(err); got != status {
		t.Fatalf("status: want=%d got=%d (%v)", status, got, err)
	}
}
