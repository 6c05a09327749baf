package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

const (
	OpAdd   = "add"
	OpSet   = "set"
	OpSpend = "spend"
	OpGrant = "grant"
)

var ErrDisabled = errors.New("credit journal is not configured")

// Journal appends one row per balance mutation. Redis stays the source of
// truth; the journal is for audits and support.
type Journal struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(log *logger.Logger, db *gorm.DB) *Journal {
	return &Journal{db: db, log: log.With("service", "Journal")}
}

type Entry struct {
	Address        string
	Operation      string
	Amount         int64
	OldBalance     int64
	NewBalance     int64
	IdempotencyKey string
	Metadata       map[string]any
}

func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j == nil {
		return nil
	}
	row := payments.LedgerEntry{
		Address:        e.Address,
		Operation:      e.Operation,
		Amount:         e.Amount,
		OldBalance:     e.OldBalance,
		NewBalance:     e.NewBalance,
		Context:        Reason(ctx),
		IdempotencyKey: e.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	if len(e.Metadata) > 0 {
		if raw, err := json.Marshal(e.Metadata); err == nil {
			row.Metadata = datatypes.JSON(raw)
		}
	}
	return j.db.WithContext(ctx).Create(&row).Error
}

// ForAddress returns the newest entries first.
func (j *Journal) ForAddress(ctx context.Context, address string, limit int) ([]payments.LedgerEntry, error) {
	if j == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []payments.LedgerEntry
	err := j.db.WithContext(ctx).
		Where("address = ?", address).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

type reasonKey struct{}

// WithReason tags ledger mutations made under ctx, e.g. "refund:replicate".
func WithReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, reasonKey{}, reason)
}

func Reason(ctx context.Context) string {
	if v, ok := ctx.Value(reasonKey{}).(string); ok {
		return v
	}
	return ""
}
