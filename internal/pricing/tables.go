package pricing

import "github.com/yungbote/ghiblify-backend/internal/domain/payments"

// TableEntry is the per-tier shape the storefront renders for one rail.
type TableEntry struct {
	Amount         float64 `json:"amount"`
	OriginalAmount float64 `json:"original_amount,omitempty"`
	Credits        int64   `json:"credits"`
	Description    string  `json:"description"`
	Discount       string  `json:"discount,omitempty"`
}

// Table prices every tier for method.
func Table(method payments.Method) map[Tier]TableEntry {
	out := map[Tier]TableEntry{}
	for _, t := range Tiers() {
		q, ok := Price(t, method)
		if !ok {
			continue
		}
		e := TableEntry{
			Amount:      q.DiscountedPrice,
			Credits:     q.Credits,
			Description: q.Description,
		}
		if q.DiscountRate > 0 {
			e.OriginalAmount = q.BasePrice
			e.Discount = q.DiscountPercentage
		}
		out[t] = e
	}
	return out
}

// CreditsTable lists credits per tier for rails priced in tokens rather than USD.
func CreditsTable() map[Tier]TableEntry {
	out := map[Tier]TableEntry{}
	for _, t := range Tiers() {
		p := packages[t]
		out[t] = TableEntry{Credits: p.Credits, Description: p.Description}
	}
	return out
}
