package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

const (
	alice = "0x52908400098527886E0F7030069857D2E4169EE7"
	bob   = "0x8617e340b3d01fa5f11f306f4090fd50e238070d"
)

func newRedisForTest(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(logger.Nop(), rdb, WithMaxRetries(200)), mr
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	rs, _ := newRedisForTest(t)
	return map[string]Store{
		"redis":  rs,
		"memory": NewMemoryStore(logger.Nop()),
	}
}

func TestSpendNeverGoesNegative(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := st.Add(ctx, alice, 1); err != nil {
				t.Fatalf("Add: %v", err)
			}
			change, err := st.Spend(ctx, alice, 1)
			if err != nil {
				t.Fatalf("Spend: %v", err)
			}
			if change.OldBalance != 1 || change.NewBalance != 0 {
				t.Fatalf("change: want=1->0 got=%d->%d", change.OldBalance, change.NewBalance)
			}
			if _, err := st.Spend(ctx, alice, 1); !errors.Is(err, ErrInsufficientCredits) {
				t.Fatalf("Spend on empty: want=ErrInsufficientCredits got=%v", err)
			}
			bal, _ := st.Balance(ctx, alice)
			if bal != 0 {
				t.Fatalf("balance: want=0 got=%d", bal)
			}
		})
	}
}

func TestConcurrentSpendsDrainExactly(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := st.SetBalance(ctx, alice, 10); err != nil {
				t.Fatalf("SetBalance: %v", err)
			}
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
			)
			for i := 0; i < 25; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := st.Spend(ctx, alice, 1)
					if err == nil {
						mu.Lock()
						successes++
						mu.Unlock()
						return
					}
					if !errors.Is(err, ErrInsufficientCredits) {
						t.Errorf("Spend: unexpected error %v", err)
					}
				}()
			}
			wg.Wait()
			if successes != 10 {
				t.Fatalf("successes: want=10 got=%d", successes)
			}
			bal, _ := st.Balance(ctx, alice)
			if bal != 0 {
				t.Fatalf("balance: want=0 got=%d", bal)
			}
		})
	}
}

func TestRedisSpendGivesUpUnderContention(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	addr, err := validateAddress(alice)
	if err != nil {
		t.Fatalf("validateAddress: %v", err)
	}
	// Once armed, every read-modify-write sees another writer touch the
	// wallet between WATCH and EXEC.
	var armed bool
	clock := func() time.Time {
		if armed {
			mr.HSet(UserKey(addr), fieldUpdatedAt, "concurrent")
		}
		return time.Now()
	}
	st := NewRedisStore(logger.Nop(), rdb, WithMaxRetries(1), WithClock(clock))
	if _, err := st.SetBalance(ctx, alice, 10); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}

	armed = true
	if _, err := st.Spend(ctx, alice, 5); !errors.Is(err, ErrConflict) {
		t.Fatalf("Spend: want=ErrConflict got=%v", err)
	}
	if _, err := st.SetBalance(ctx, alice, 99); !errors.Is(err, ErrConflict) {
		t.Fatalf("SetBalance: want=ErrConflict got=%v", err)
	}
	armed = false

	if bal, _ := st.Balance(ctx, alice); bal != 10 {
		t.Fatalf("balance: want=10 got=%d", bal)
	}
}

func TestCreditOnceIsIdempotent(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := Grant{
				Key:     BasePayKey("pay_1"),
				Address: alice,
				Credits: 12,
				Record:  &payments.Record{Method: payments.MethodBasePay, Type: "purchase", PaymentID: "pay_1", Tier: "pro", Credits: 12},
			}
			first, err := st.CreditOnce(ctx, g)
			if err != nil {
				t.Fatalf("CreditOnce #1: %v", err)
			}
			if !first.Applied || first.Change.NewBalance != 12 {
				t.Fatalf("CreditOnce #1: want applied balance=12 got=%+v", first)
			}
			second, err := st.CreditOnce(ctx, g)
			if err != nil {
				t.Fatalf("CreditOnce #2: %v", err)
			}
			if second.Applied {
				t.Fatalf("CreditOnce #2: want not applied")
			}
			if second.Change.NewBalance != 12 {
				t.Fatalf("CreditOnce #2 balance: want=12 got=%d", second.Change.NewBalance)
			}
			hist, err := st.History(ctx, alice, payments.MethodBasePay, 0)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(hist) != 1 || hist[0].PaymentID != "pay_1" {
				t.Fatalf("history: want one pay_1 entry got=%+v", hist)
			}
			m, err := st.Processed(ctx, g.Key)
			if err != nil || m == nil {
				t.Fatalf("Processed: want marker got=%v err=%v", m, err)
			}
			if m.Credits != 12 || m.Address != "0x52908400098527886e0f7030069857d2e4169ee7" || m.ProcessedAt.IsZero() {
				t.Fatalf("marker: got=%+v", m)
			}
		})
	}
}

func TestConcurrentDuplicateDeliveriesCreditOnce(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := Grant{Key: StripeSessionKey("cs_1"), Address: bob, Credits: 30}
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				applied int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := st.CreditOnce(ctx, g)
					if err != nil {
						t.Errorf("CreditOnce: %v", err)
						return
					}
					if res.Applied {
						mu.Lock()
						applied++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			if applied != 1 {
				t.Fatalf("applied: want=1 got=%d", applied)
			}
			bal, _ := st.Balance(ctx, bob)
			if bal != 30 {
				t.Fatalf("balance: want=30 got=%d", bal)
			}
		})
	}
}

func TestHistoryIsCappedNewestFirst(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				id := fmt.Sprintf("tx_%d", i)
				_, err := st.CreditOnce(ctx, Grant{
					Key:          CeloTxKey(44787, id),
					Address:      alice,
					Credits:      1,
					HistoryLimit: 3,
					Record:       &payments.Record{Method: payments.MethodCelo, TxHash: id, Credits: 1},
				})
				if err != nil {
					t.Fatalf("CreditOnce %s: %v", id, err)
				}
			}
			hist, err := st.History(ctx, alice, payments.MethodCelo, 10)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(hist) != 3 {
				t.Fatalf("len: want=3 got=%d", len(hist))
			}
			if hist[0].TxHash != "tx_4" || hist[2].TxHash != "tx_2" {
				t.Fatalf("order: got=%s..%s", hist[0].TxHash, hist[2].TxHash)
			}
		})
	}
}

func TestNonces(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := st.PutNonce(ctx, "abc", time.Minute); err != nil {
				t.Fatalf("PutNonce: %v", err)
			}
			ok, err := st.ConsumeNonce(ctx, "abc")
			if err != nil || !ok {
				t.Fatalf("ConsumeNonce #1: want=true got=%v err=%v", ok, err)
			}
			ok, _ = st.ConsumeNonce(ctx, "abc")
			if ok {
				t.Fatalf("ConsumeNonce #2: want=false")
			}
			first, _ := st.ClaimNonce(ctx, "ext", time.Minute)
			again, _ := st.ClaimNonce(ctx, "ext", time.Minute)
			if !first || again {
				t.Fatalf("ClaimNonce: want=true,false got=%v,%v", first, again)
			}
		})
	}
}

func TestInvalidInputs(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := st.Add(ctx, "0x123", 1); !errors.Is(err, ErrInvalidAddress) {
				t.Fatalf("Add bad address: want=ErrInvalidAddress got=%v", err)
			}
			if _, err := st.Add(ctx, alice, 0); !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("Add zero: want=ErrInvalidAmount got=%v", err)
			}
			if _, err := st.SetBalance(ctx, alice, -1); !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("SetBalance negative: want=ErrInvalidAmount got=%v", err)
			}
			if _, err := st.CreditOnce(ctx, Grant{Address: alice, Credits: 1}); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("CreditOnce no key: want=ErrInvalidKey got=%v", err)
			}
		})
	}
}

func TestAddressesAreCaseInsensitive(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := st.Add(ctx, "0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD", 3); err != nil {
				t.Fatalf("Add: %v", err)
			}
			bal, _ := st.Balance(ctx, "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")
			if bal != 3 {
				t.Fatalf("balance: want=3 got=%d", bal)
			}
		})
	}
}

func TestRedisMarkerExpires(t *testing.T) {
	st, mr := newRedisForTest(t)
	ctx := context.Background()
	g := Grant{Key: TokenTxKey("0xAA"), Address: alice, Credits: 1, TTL: time.Hour}
	if _, err := st.CreditOnce(ctx, g); err != nil {
		t.Fatalf("CreditOnce: %v", err)
	}
	if ttl := mr.TTL(TokenTxKey("0xaa")); ttl != time.Hour {
		t.Fatalf("ttl: want=1h got=%s", ttl)
	}
	mr.FastForward(2 * time.Hour)
	m, err := st.Processed(ctx, g.Key)
	if err != nil || m != nil {
		t.Fatalf("Processed after expiry: want=nil got=%v err=%v", m, err)
	}
}

func TestRedisKeyLayout(t *testing.T) {
	st, mr := newRedisForTest(t)
	ctx := context.Background()
	if _, err := st.Add(ctx, alice, 5); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got := mr.HGet("user:0x52908400098527886e0f7030069857d2e4169ee7", "credits")
	if got != "5" {
		t.Fatalf("user hash credits: want=5 got=%q", got)
	}
}

func TestRedisEnsureWritesWholeHash(t *testing.T) {
	at := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := NewRedisStore(logger.Nop(), rdb, WithClock(func() time.Time { return at }))
	ctx := context.Background()
	key := "user:0x52908400098527886e0f7030069857d2e4169ee7"

	if bal, err := st.Ensure(ctx, alice); err != nil || bal != 0 {
		t.Fatalf("Ensure: want=0 got=%d err=%v", bal, err)
	}
	if got := mr.HGet(key, "credits"); got != "0" {
		t.Fatalf("credits: want=0 got=%q", got)
	}
	if got := mr.HGet(key, "updated_at"); got != "2025-04-01T12:00:00Z" {
		t.Fatalf("updated_at: want=2025-04-01T12:00:00Z got=%q", got)
	}

	// existing wallets keep their balance and stamp
	mr.HSet(key, "credits", "7", "updated_at", "earlier")
	if bal, err := st.Ensure(ctx, alice); err != nil || bal != 7 {
		t.Fatalf("Ensure existing: want=7 got=%d err=%v", bal, err)
	}
	if got := mr.HGet(key, "updated_at"); got != "earlier" {
		t.Fatalf("updated_at: want=earlier got=%q", got)
	}
}

func TestRangeListNegativeIndexes(t *testing.T) {
	list := []string{"a", "b", "c", "d"}
	got := rangeList(list, 0, -1)
	if len(got) != 4 {
		t.Fatalf("0..-1: want=4 got=%d", len(got))
	}
	got = rangeList(list, -2, -1)
	if len(got) != 2 || got[0] != "c" {
		t.Fatalf("-2..-1: got=%v", got)
	}
	if got = rangeList(nil, 0, 10); len(got) != 0 {
		t.Fatalf("empty: got=%v", got)
	}
}

func TestMemoryStatusWarns(t *testing.T) {
	st := NewMemoryStore(logger.Nop())
	status := st.Status(context.Background())
	if !status.Available || status.StorageMode != ModeMemory || status.Warning == "" {
		t.Fatalf("status: got=%+v", status)
	}
}
