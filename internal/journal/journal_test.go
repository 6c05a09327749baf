package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/yungbote/ghiblify-backend/internal/db"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

const addr = "0x52908400098527886e0f7030069857d2e4169ee7"

func newJournalForTest(t *testing.T) *Journal {
	t.Helper()
	svc, err := db.Open(logger.Nop(), db.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "journal.db")})
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	if err := svc.AutoMigrateAll(); err != nil {
		t.Fatalf("AutoMigrateAll: %v", err)
	}
	return New(logger.Nop(), svc.DB())
}

func TestWrapRecordsMutations(t *testing.T) {
	j := newJournalForTest(t)
	st := Wrap(store.NewMemoryStore(logger.Nop()), j, logger.Nop())
	ctx := WithReason(context.Background(), "admin:test")

	if _, err := st.Add(ctx, addr, 5); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := st.Spend(ctx, addr, 2); err != nil {
		t.Fatalf("Spend: %v", err)
	}
	g := store.Grant{Key: store.BasePayKey("p1"), Address: addr, Credits: 12}
	if _, err := st.CreditOnce(ctx, g); err != nil {
		t.Fatalf("CreditOnce: %v", err)
	}
	if _, err := st.CreditOnce(ctx, g); err != nil {
		t.Fatalf("CreditOnce replay: %v", err)
	}
	if _, err := st.Spend(ctx, addr, 100); err == nil {
		t.Fatalf("Spend beyond balance: want error")
	}

	rows, err := j.ForAddress(context.Background(), addr, 10)
	if err != nil {
		t.Fatalf("ForAddress: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows: want=3 got=%d", len(rows))
	}
	if rows[0].Operation != OpGrant || rows[0].NewBalance != 15 || rows[0].IdempotencyKey != "base_pay_processed:p1" {
		t.Fatalf("newest row: got=%+v", rows[0])
	}
	if rows[2].Operation != OpAdd || rows[2].Context != "admin:test" {
		t.Fatalf("oldest row: got=%+v", rows[2])
	}
}

func TestWrapNilJournalIsPassthrough(t *testing.T) {
	base := store.NewMemoryStore(logger.Nop())
	if got := Wrap(base, nil, logger.Nop()); got != store.Store(base) {
		t.Fatalf("Wrap(nil): want original store")
	}
}
