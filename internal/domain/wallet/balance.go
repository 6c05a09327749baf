package wallet

import "time"

// Change is the result of one ledger mutation.
type Change struct {
	Address    string    `json:"address"`
	OldBalance int64     `json:"old_balance"`
	NewBalance int64     `json:"new_balance"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Delta is NewBalance - OldBalance.
func (c Change) Delta() int64 { return c.NewBalance - c.OldBalance }
