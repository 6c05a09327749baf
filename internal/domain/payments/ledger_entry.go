package payments

import (
	"time"

	"gorm.io/datatypes"
)

// LedgerEntry is the durable audit row written after every balance mutation.
type LedgerEntry struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Address        string         `gorm:"column:address;type:text;not null;index" json:"address"`
	Operation      string         `gorm:"column:operation;type:text;not null" json:"operation"`
	Amount         int64          `gorm:"column:amount;not null" json:"amount"`
	OldBalance     int64          `gorm:"column:old_balance;not null" json:"old_balance"`
	NewBalance     int64          `gorm:"column:new_balance;not null" json:"new_balance"`
	Context        string         `gorm:"column:context;type:text" json:"context,omitempty"`
	IdempotencyKey string         `gorm:"column:idempotency_key;type:text;index" json:"idempotency_key,omitempty"`
	Metadata       datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "credit_journal" }
