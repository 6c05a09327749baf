package pricing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
)

type Tier string

const (
	TierStarter   Tier = "starter"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// Cents is a USD amount in cents.
type Cents int64

func (c Cents) Dollars() float64 { return float64(c) / 100 }

func (c Cents) String() string { return fmt.Sprintf("%.2f", c.Dollars()) }

// FromDollars rounds a dollar amount to the nearest cent.
func FromDollars(v float64) Cents { return Cents(math.Round(v * 100)) }

type Package struct {
	Tier        Tier
	BasePrice   Cents
	Credits     int64
	Description string
}

var packages = map[Tier]Package{
	TierStarter:   {Tier: TierStarter, BasePrice: 50, Credits: 1, Description: "1 Ghibli transformation"},
	TierPro:       {Tier: TierPro, BasePrice: 499, Credits: 12, Description: "12 Ghibli transformations"},
	TierUnlimited: {Tier: TierUnlimited, BasePrice: 999, Credits: 30, Description: "30 Ghibli transformations"},
}

// Discount rates per payment rail.
var discounts = map[payments.Method]float64{
	payments.MethodStripe:   0,
	payments.MethodCoinbase: 0,
	payments.MethodCelo:     0.30,
	payments.MethodBasePay:  0.30,
}

// contract tier names that differ from ours
var tierAliases = map[string]Tier{
	"don": TierUnlimited,
}

// amountTolerance is one cent.
const amountTolerance = 0.01

// ParseTier resolves a tier name or a contract alias.
func ParseTier(raw string) (Tier, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if t, ok := tierAliases[name]; ok {
		return t, true
	}
	t := Tier(name)
	_, ok := packages[t]
	return t, ok
}

// ContractName maps a tier to the name the payment contracts emit.
func ContractName(t Tier) string {
	for alias, tier := range tierAliases {
		if tier == t {
			return alias
		}
	}
	return string(t)
}

func Lookup(t Tier) (Package, bool) {
	p, ok := packages[t]
	return p, ok
}

// Tiers returns all tiers ordered by price.
func Tiers() []Tier {
	out := make([]Tier, 0, len(packages))
	for t := range packages {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return packages[out[i]].BasePrice < packages[out[j]].BasePrice })
	return out
}

// Methods returns the rails with a configured discount, sorted by name.
func Methods() []payments.Method {
	out := make([]payments.Method, 0, len(discounts))
	for m := range discounts {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Quote is the price of one tier on one rail.
type Quote struct {
	Tier               Tier            `json:"tier"`
	PaymentMethod      payments.Method `json:"payment_method"`
	BasePrice          float64         `json:"base_price"`
	DiscountedPrice    float64         `json:"discounted_price"`
	DiscountRate       float64         `json:"discount_rate"`
	DiscountPercentage string          `json:"discount_percentage"`
	Savings            float64         `json:"savings"`
	Credits            int64           `json:"credits"`
	Description        string          `json:"description"`

	base       Cents
	discounted Cents
}

func (q Quote) BaseCents() Cents       { return q.base }
func (q Quote) DiscountedCents() Cents { return q.discounted }

func Price(t Tier, method payments.Method) (Quote, bool) {
	pkg, ok := packages[t]
	if !ok {
		return Quote{}, false
	}
	rate, ok := discounts[method]
	if !ok {
		return Quote{}, false
	}
	discounted := Cents(math.Round(float64(pkg.BasePrice) * (1 - rate)))
	return Quote{
		Tier:               t,
		PaymentMethod:      method,
		BasePrice:          pkg.BasePrice.Dollars(),
		DiscountedPrice:    discounted.Dollars(),
		DiscountRate:       rate,
		DiscountPercentage: fmt.Sprintf("%d%%", int(math.Round(rate*100))),
		Savings:            (pkg.BasePrice - discounted).Dollars(),
		Credits:            pkg.Credits,
		Description:        pkg.Description,
		base:               pkg.BasePrice,
		discounted:         discounted,
	}, true
}

// ValidAmount accepts either the discounted or the undiscounted price.
func ValidAmount(t Tier, method payments.Method, amount float64) bool {
	q, ok := Price(t, method)
	if !ok {
		return false
	}
	for _, want := range []float64{q.DiscountedPrice, q.BasePrice} {
		if math.Abs(amount-want) < amountTolerance {
			return true
		}
	}
	return false
}

// ExpectedAmounts lists the accepted amounts for error messages.
func ExpectedAmounts(t Tier, method payments.Method) []float64 {
	q, ok := Price(t, method)
	if !ok {
		return nil
	}
	if q.DiscountedPrice == q.BasePrice {
		return []float64{q.BasePrice}
	}
	return []float64{q.DiscountedPrice, q.BasePrice}
}

// AllMethods prices one tier on every rail.
func AllMethods(t Tier) map[payments.Method]Quote {
	out := map[payments.Method]Quote{}
	for _, m := range Methods() {
		if q, ok := Price(t, m); ok {
			out[m] = q
		}
	}
	return out
}
