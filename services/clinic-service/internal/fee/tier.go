// Package fee holds the cancellation-fee policy: which tier a lead time falls
// into and how much of the paid amount that tier forfeits.
package fee

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Tier struct {
	Label   string
	Percent int
}

// Tiers from the tightest window outward. TierFor is the only reader.
var tiers = []struct {
	under float64
	tier  Tier
}{
	{6, Tier{Label: "under_6h", Percent: 100}},
	{12, Tier{Label: "under_12h", Percent: 75}},
	{24, Tier{Label: "under_24h", Percent: 50}},
}

var freeTier = Tier{Label: "24h_or_more", Percent: 0}

// TierFor maps hours of notice to a tier. Negative hours (cancelled after the
// start) land in the tightest tier.
func TierFor(hoursBefore float64) Tier {
	for _, t := range tiers {
		if hoursBefore < t.under {
			return t.tier
		}
	}
	return freeTier
}

type Quote struct {
	Tier   Tier
	Amount decimal.Decimal
}

// Calculator prices a cancellation. Implementations may call out to another
// system and can fail.
type Calculator interface {
	Calculate(ctx context.Context, paid decimal.Decimal, hoursBefore float64) (Quote, error)
}

// PercentCalculator charges the tier percentage of the paid amount, rounded
// half-up to the currency's minor unit.
type PercentCalculator struct {
	MinorUnits int32
}

func NewPercentCalculator(minorUnits int32) *PercentCalculator {
	return &PercentCalculator{MinorUnits: minorUnits}
}

var errNegativePaid = errors.New("paid amount must not be negative")

func (c *PercentCalculator) Calculate(ctx context.Context, paid decimal.Decimal, hoursBefore float64) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	if paid.IsNegative() {
		return Quote{}, errNegativePaid
	}
	tier := TierFor(hoursBefore)
	amount := paid.Mul(decimal.NewFromInt(int64(tier.Percent))).Div(decimal.NewFromInt(100)).Round(c.MinorUnits)
	return Quote{Tier: tier, Amount: amount}, nil
}

// Refund is what goes back to the customer, floored at zero.
func Refund(paid, fee decimal.Decimal) decimal.Decimal {
	r := paid.Sub(fee)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
