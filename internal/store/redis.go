package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/domain/wallet"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

const (
	fieldCredits   = "credits"
	fieldUpdatedAt = "updated_at"
)

type RedisStore struct {
	log        *logger.Logger
	rdb        redis.UniversalClient
	maxRetries uint64
	now        func() time.Time
}

type RedisOption func(*RedisStore)

// WithMaxRetries bounds the optimistic transaction retries per operation.
func WithMaxRetries(n uint64) RedisOption {
	return func(s *RedisStore) { s.maxRetries = n }
}

func WithClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) { s.now = now }
}

func NewRedisStore(log *logger.Logger, rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		log:        log.With("service", "RedisStore"),
		rdb:        rdb,
		maxRetries: 10,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Mode() Mode { return ModeRedis }

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) Balance(ctx context.Context, address string) (int64, error) {
	addr, err := validateAddress(address)
	if err != nil {
		return 0, err
	}
	return readCredits(ctx, s.rdb, UserKey(addr))
}

func (s *RedisStore) Ensure(ctx context.Context, address string) (int64, error) {
	addr, err := validateAddress(address)
	if err != nil {
		return 0, err
	}
	key := UserKey(addr)
	// credits and updated_at land together or not at all
	var created *redis.BoolCmd
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		created = p.HSetNX(ctx, key, fieldCredits, 0)
		p.HSetNX(ctx, key, fieldUpdatedAt, s.stamp())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}
	if created.Val() {
		s.log.Info("Created wallet", "address", addr)
	}
	return readCredits(ctx, s.rdb, key)
}

func (s *RedisStore) SetBalance(ctx context.Context, address string, amount int64) (wallet.Change, error) {
	if amount < 0 {
		return wallet.Change{}, ErrInvalidAmount
	}
	return s.update(ctx, address, func(int64) (int64, error) { return amount, nil })
}

// Add is a single HINCRBY so it needs no WATCH.
func (s *RedisStore) Add(ctx context.Context, address string, amount int64) (wallet.Change, error) {
	if amount <= 0 {
		return wallet.Change{}, ErrInvalidAmount
	}
	addr, err := validateAddress(address)
	if err != nil {
		return wallet.Change{}, err
	}
	key := UserKey(addr)
	now := s.now().UTC()
	var incr *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.HIncrBy(ctx, key, fieldCredits, amount)
		p.HSet(ctx, key, fieldUpdatedAt, now.Format(time.RFC3339))
		return nil
	})
	if err != nil {
		return wallet.Change{}, fmt.Errorf("add credits: %w", err)
	}
	next := incr.Val()
	return wallet.Change{Address: addr, OldBalance: next - amount, NewBalance: next, UpdatedAt: now}, nil
}

func (s *RedisStore) Spend(ctx context.Context, address string, amount int64) (wallet.Change, error) {
	if amount <= 0 {
		return wallet.Change{}, ErrInvalidAmount
	}
	return s.update(ctx, address, func(old int64) (int64, error) {
		if old < amount {
			return 0, ErrInsufficientCredits
		}
		return old - amount, nil
	})
}

// update applies fn to the balance inside WATCH/MULTI/EXEC, retrying when another
// writer changed the wallet between the read and the write.
func (s *RedisStore) update(ctx context.Context, address string, fn func(old int64) (int64, error)) (wallet.Change, error) {
	addr, err := validateAddress(address)
	if err != nil {
		return wallet.Change{}, err
	}
	key := UserKey(addr)
	var change wallet.Change
	txf := func(tx *redis.Tx) error {
		old, err := readCredits(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := fn(old)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, fieldCredits, next, fieldUpdatedAt, now.Format(time.RFC3339))
			return nil
		})
		if err != nil {
			return err
		}
		change = wallet.Change{Address: addr, OldBalance: old, NewBalance: next, UpdatedAt: now}
		return nil
	}
	if err := s.retry(ctx, "update", func() error { return s.rdb.Watch(ctx, txf, key) }); err != nil {
		return wallet.Change{}, err
	}
	return change, nil
}

// CreditOnce watches the processed marker so two deliveries of the same payment
// cannot both commit. The balance itself moves by HINCRBY inside MULTI, so
// concurrent spends on the same wallet do not force a retry.
func (s *RedisStore) CreditOnce(ctx context.Context, g Grant) (GrantResult, error) {
	g, err := validateGrant(g)
	if err != nil {
		return GrantResult{}, err
	}
	userKey := UserKey(g.Address)

	var history []byte
	if g.Record != nil {
		if history, err = json.Marshal(g.Record); err != nil {
			return GrantResult{}, fmt.Errorf("encode history: %w", err)
		}
	}

	var res GrantResult
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, g.Key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			bal, err := readCredits(ctx, tx, userKey)
			if err != nil {
				return err
			}
			res = GrantResult{Applied: false, Change: wallet.Change{Address: g.Address, OldBalance: bal, NewBalance: bal}}
			return nil
		}
		now := s.now().UTC()
		marker, err := json.Marshal(Marker{Address: g.Address, Credits: g.Credits, ProcessedAt: now})
		if err != nil {
			return err
		}
		var incr *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			incr = p.HIncrBy(ctx, userKey, fieldCredits, g.Credits)
			p.HSet(ctx, userKey, fieldUpdatedAt, now.Format(time.RFC3339))
			p.Set(ctx, g.Key, marker, g.TTL)
			if history != nil {
				hk := HistoryKey(g.Record.Method, g.Address)
				p.LPush(ctx, hk, history)
				p.LTrim(ctx, hk, 0, int64(g.HistoryLimit-1))
			}
			return nil
		})
		if err != nil {
			return err
		}
		next := incr.Val()
		res = GrantResult{Applied: true, Change: wallet.Change{
			Address:    g.Address,
			OldBalance: next - g.Credits,
			NewBalance: next,
			UpdatedAt:  now,
		}}
		return nil
	}
	if err := s.retry(ctx, "credit_once", func() error { return s.rdb.Watch(ctx, txf, g.Key) }); err != nil {
		return GrantResult{}, err
	}
	if res.Applied {
		s.log.Info("Credits granted",
			"address", g.Address,
			"credits", g.Credits,
			"idempotency_key", g.Key,
			"new_balance", res.Change.NewBalance,
		)
	} else {
		s.log.Info("Grant already applied", "address", g.Address, "idempotency_key", g.Key)
	}
	return res, nil
}

func (s *RedisStore) Processed(ctx context.Context, key string) (*Marker, error) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read marker: %w", err)
	}
	return decodeMarker(raw), nil
}

func (s *RedisStore) History(ctx context.Context, address string, method payments.Method, limit int) ([]payments.Record, error) {
	addr, err := validateAddress(address)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	raws, err := s.rdb.LRange(ctx, HistoryKey(method, addr), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return decodeHistory(s.log, raws), nil
}

func (s *RedisStore) PutNonce(ctx context.Context, nonce string, ttl time.Duration) error {
	return s.rdb.Set(ctx, NonceKey(nonce), "valid", ttl).Err()
}

func (s *RedisStore) ConsumeNonce(ctx context.Context, nonce string) (bool, error) {
	_, err := s.rdb.GetDel(ctx, NonceKey(nonce)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume nonce: %w", err)
	}
	return true, nil
}

func (s *RedisStore) ClaimNonce(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, UsedNonceKey(nonce), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim nonce: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *RedisStore) PushCapped(ctx context.Context, key, value string, max int) error {
	if max <= 0 {
		max = DefaultHistoryLimit
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, value)
		p.LTrim(ctx, key, 0, int64(max-1))
		return nil
	})
	return err
}

func (s *RedisStore) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.rdb.LRange(ctx, key, start, stop).Result()
}

func (s *RedisStore) Status(ctx context.Context) Status {
	st := Status{StorageMode: ModeRedis}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Available = true
	info, err := s.rdb.Info(ctx, "server", "clients", "memory").Result()
	if err != nil {
		st.Warning = "info unavailable: " + err.Error()
		return st
	}
	for _, line := range strings.Split(info, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch k {
		case "redis_version":
			st.RedisVersion = v
		case "connected_clients":
			st.ConnectedClients = v
		case "used_memory_human":
			st.UsedMemoryHuman = v
		}
	}
	return st
}

func (s *RedisStore) retry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second
	policy.Reset()

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := fn()
		if errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, s.maxRetries), ctx))
	if attempts > 1 {
		s.log.Debug("Optimistic transaction retried", "op", op, "attempts", attempts)
	}
	if errors.Is(err, redis.TxFailedErr) {
		s.log.Warn("Optimistic transaction gave up", "op", op, "attempts", attempts)
		return fmt.Errorf("%w: %s", ErrConflict, op)
	}
	return err
}

type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func readCredits(ctx context.Context, c hashGetter, key string) (int64, error) {
	raw, err := c.HGet(ctx, key, fieldCredits).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read credits: %w", err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt credits value %q for %s", raw, key)
	}
	return n, nil
}

func (s *RedisStore) stamp() string { return s.now().UTC().Format(time.RFC3339) }

// decodeMarker tolerates markers written as plain strings by older deployments.
func decodeMarker(raw string) *Marker {
	var m Marker
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return &Marker{}
	}
	return &m
}

func decodeHistory(log *logger.Logger, raws []string) []payments.Record {
	out := make([]payments.Record, 0, len(raws))
	for _, raw := range raws {
		var rec payments.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			log.Warn("Skipping unreadable history entry", "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}
