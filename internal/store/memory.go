package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/domain/wallet"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

// MemoryStore keeps everything in process. It serves local development and the
// degraded mode used when Redis is unreachable at startup; balances do not
// survive a restart.
type MemoryStore struct {
	log *logger.Logger
	now func() time.Time

	mu     sync.Mutex
	users  map[string]memUser
	values map[string]memValue
	lists  map[string][]string
}

type memUser struct {
	credits   int64
	updatedAt time.Time
}

type memValue struct {
	value     string
	expiresAt time.Time
}

func (v memValue) expired(now time.Time) bool {
	return !v.expiresAt.IsZero() && now.After(v.expiresAt)
}

func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		log:    log.With("service", "MemoryStore"),
		now:    time.Now,
		users:  map[string]memUser{},
		values: map[string]memValue{},
		lists:  map[string][]string{},
	}
}

func (m *MemoryStore) Mode() Mode { return ModeMemory }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Balance(_ context.Context, address string) (int64, error) {
	addr, err := validateAddress(address)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[addr].credits, nil
}

func (m *MemoryStore) Ensure(_ context.Context, address string) (int64, error) {
	addr, err := validateAddress(address)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[addr]
	if !ok {
		u = memUser{updatedAt: m.now().UTC()}
		m.users[addr] = u
	}
	return u.credits, nil
}

func (m *MemoryStore) SetBalance(_ context.Context, address string, amount int64) (wallet.Change, error) {
	if amount < 0 {
		return wallet.Change{}, ErrInvalidAmount
	}
	return m.apply(address, func(int64) (int64, error) { return amount, nil })
}

func (m *MemoryStore) Add(_ context.Context, address string, amount int64) (wallet.Change, error) {
	if amount <= 0 {
		return wallet.Change{}, ErrInvalidAmount
	}
	return m.apply(address, func(old int64) (int64, error) { return old + amount, nil })
}

func (m *MemoryStore) Spend(_ context.Context, address string, amount int64) (wallet.Change, error) {
	if amount <= 0 {
		return wallet.Change{}, ErrInvalidAmount
	}
	return m.apply(address, func(old int64) (int64, error) {
		if old < amount {
			return 0, ErrInsufficientCredits
		}
		return old - amount, nil
	})
}

func (m *MemoryStore) apply(address string, fn func(int64) (int64, error)) (wallet.Change, error) {
	addr, err := validateAddress(address)
	if err != nil {
		return wallet.Change{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(addr, fn)
}

func (m *MemoryStore) applyLocked(addr string, fn func(int64) (int64, error)) (wallet.Change, error) {
	old := m.users[addr].credits
	next, err := fn(old)
	if err != nil {
		return wallet.Change{}, err
	}
	now := m.now().UTC()
	m.users[addr] = memUser{credits: next, updatedAt: now}
	return wallet.Change{Address: addr, OldBalance: old, NewBalance: next, UpdatedAt: now}, nil
}

func (m *MemoryStore) CreditOnce(_ context.Context, g Grant) (GrantResult, error) {
	g, err := validateGrant(g)
	if err != nil {
		return GrantResult{}, err
	}
	var history []byte
	if g.Record != nil {
		if history, err = json.Marshal(g.Record); err != nil {
			return GrantResult{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if v, ok := m.values[g.Key]; ok && !v.expired(now) {
		bal := m.users[g.Address].credits
		return GrantResult{Change: wallet.Change{Address: g.Address, OldBalance: bal, NewBalance: bal}}, nil
	}
	marker, err := json.Marshal(Marker{Address: g.Address, Credits: g.Credits, ProcessedAt: now})
	if err != nil {
		return GrantResult{}, err
	}
	change, err := m.applyLocked(g.Address, func(old int64) (int64, error) { return old + g.Credits, nil })
	if err != nil {
		return GrantResult{}, err
	}
	m.putLocked(g.Key, string(marker), g.TTL)
	if history != nil {
		m.pushLocked(HistoryKey(g.Record.Method, g.Address), string(history), g.HistoryLimit)
	}
	return GrantResult{Applied: true, Change: change}, nil
}

func (m *MemoryStore) Processed(_ context.Context, key string) (*Marker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.getLocked(key)
	if !ok {
		return nil, nil
	}
	return decodeMarker(v), nil
}

func (m *MemoryStore) History(_ context.Context, address string, method payments.Method, limit int) ([]payments.Record, error) {
	addr, err := validateAddress(address)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	m.mu.Lock()
	raws := rangeList(m.lists[HistoryKey(method, addr)], 0, int64(limit-1))
	m.mu.Unlock()
	return decodeHistory(m.log, raws), nil
}

func (m *MemoryStore) PutNonce(_ context.Context, nonce string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(NonceKey(nonce), "valid", ttl)
	return nil
}

func (m *MemoryStore) ConsumeNonce(_ context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := NonceKey(nonce)
	_, ok := m.getLocked(key)
	delete(m.values, key)
	return ok, nil
}

func (m *MemoryStore) ClaimNonce(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := UsedNonceKey(nonce)
	if _, ok := m.getLocked(key); ok {
		return false, nil
	}
	m.putLocked(key, "1", ttl)
	return true, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.getLocked(key)
	return v, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(key, value, ttl)
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.getLocked(key); ok {
		return true, nil
	}
	_, ok := m.lists[key]
	return ok, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.lists, key)
	return nil
}

func (m *MemoryStore) PushCapped(_ context.Context, key, value string, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushLocked(key, value, max)
	return nil
}

func (m *MemoryStore) Range(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return rangeList(m.lists[key], start, stop), nil
}

func (m *MemoryStore) Status(context.Context) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Available:   true,
		StorageMode: ModeMemory,
		Users:       len(m.users),
		Keys:        len(m.values) + len(m.lists),
		Warning:     "Using in-memory storage. Data will be lost on restart.",
	}
}

func (m *MemoryStore) getLocked(key string) (string, bool) {
	v, ok := m.values[key]
	if !ok {
		return "", false
	}
	if v.expired(m.now()) {
		delete(m.values, key)
		return "", false
	}
	return v.value, true
}

func (m *MemoryStore) putLocked(key, value string, ttl time.Duration) {
	v := memValue{value: value}
	if ttl > 0 {
		v.expiresAt = m.now().Add(ttl)
	}
	m.values[key] = v
}

func (m *MemoryStore) pushLocked(key, value string, max int) {
	if max <= 0 {
		max = DefaultHistoryLimit
	}
	list := append([]string{value}, m.lists[key]...)
	if len(list) > max {
		list = list[:max]
	}
	m.lists[key] = list
}

// rangeList follows LRANGE semantics, including negative indexes.
func rangeList(list []string, start, stop int64) []string {
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return []string{}
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out
}
