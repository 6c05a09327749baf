package store

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/domain/wallet"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("invalid credit amount")
	ErrInvalidAddress      = errors.New("invalid wallet address")
	ErrInvalidKey          = errors.New("missing idempotency key")
	ErrConflict            = errors.New("ledger contention: retries exhausted")
)

type Mode string

const (
	ModeRedis  Mode = "redis"
	ModeMemory Mode = "memory"
)

// DefaultHistoryLimit caps every purchase history list.
const DefaultHistoryLimit = 100

// Grant credits a wallet for one external payment. Key is the provider's
// idempotency key; a Grant with a key that was already applied is a no-op.
type Grant struct {
	Key     string
	Address string
	Credits int64
	// TTL of the processed marker. Zero keeps it forever.
	TTL          time.Duration
	Record       *payments.Record
	HistoryLimit int
}

type GrantResult struct {
	Applied bool
	Change  wallet.Change
}

// Marker is stored under a Grant's key once it has been applied.
type Marker struct {
	Address     string    `json:"address"`
	Credits     int64     `json:"credits"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Ledger holds per-wallet credit balances. Addresses are normalized by the
// implementation; callers may pass any casing.
type Ledger interface {
	Balance(ctx context.Context, address string) (int64, error)
	// Ensure creates the wallet with a zero balance when it does not exist.
	Ensure(ctx context.Context, address string) (int64, error)
	SetBalance(ctx context.Context, address string, amount int64) (wallet.Change, error)
	Add(ctx context.Context, address string, amount int64) (wallet.Change, error)
	// Spend fails with ErrInsufficientCredits instead of going negative.
	Spend(ctx context.Context, address string, amount int64) (wallet.Change, error)
	// CreditOnce applies g atomically with its processed marker and history entry.
	CreditOnce(ctx context.Context, g Grant) (GrantResult, error)
	Processed(ctx context.Context, key string) (*Marker, error)
	History(ctx context.Context, address string, method payments.Method, limit int) ([]payments.Record, error)
}

type Nonces interface {
	PutNonce(ctx context.Context, nonce string, ttl time.Duration) error
	// ConsumeNonce deletes the nonce and reports whether it existed.
	ConsumeNonce(ctx context.Context, nonce string) (bool, error)
	// ClaimNonce records a nonce we did not issue; false means it was seen before.
	ClaimNonce(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// PushCapped prepends value and trims the list to max entries.
	PushCapped(ctx context.Context, key, value string, max int) error
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
}

type Store interface {
	Ledger
	Nonces
	KV
	Status(ctx context.Context) Status
	Mode() Mode
	Close() error
}

type Status struct {
	Available        bool   `json:"available"`
	StorageMode      Mode   `json:"storage_mode"`
	RedisVersion     string `json:"redis_version,omitempty"`
	ConnectedClients string `json:"connected_clients,omitempty"`
	UsedMemoryHuman  string `json:"used_memory_human,omitempty"`
	Users            int    `json:"users,omitempty"`
	Keys             int    `json:"keys,omitempty"`
	Warning          string `json:"warning,omitempty"`
	Error            string `json:"error,omitempty"`
}

func validateAddress(address string) (string, error) {
	if !wallet.Valid(address) {
		return "", ErrInvalidAddress
	}
	return wallet.Normalize(address), nil
}

func validateGrant(g Grant) (Grant, error) {
	addr, err := validateAddress(g.Address)
	if err != nil {
		return g, err
	}
	if g.Key == "" {
		return g, ErrInvalidKey
	}
	if g.Credits <= 0 {
		return g, ErrInvalidAmount
	}
	g.Address = addr
	if g.HistoryLimit <= 0 {
		g.HistoryLimit = DefaultHistoryLimit
	}
	return g, nil
}
