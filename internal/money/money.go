// Package money defines the signed-amount conventions used across the ledger:
// expenses are negative, income is positive, and split legs always share the
// sign of their parent.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is the canonical zero amount.
var Zero = decimal.Zero

// Parse converts user or CSV input to an exact decimal amount.
// Thousands separators are tolerated, everything else must be numeric.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// IsExpense reports whether the amount counts as an expense (strictly negative).
func IsExpense(d decimal.Decimal) bool { return d.Sign() < 0 }

// IsIncome reports whether the amount counts as income (strictly positive).
func IsIncome(d decimal.Decimal) bool { return d.Sign() > 0 }

// NormalizeLegSign coerces a split leg amount onto the parent's side of zero.
// A zero leg is sign-less and returned unchanged; a zero parent leaves legs
// unchanged because there is no sign to inherit.
func NormalizeLegSign(parent, leg decimal.Decimal) decimal.Decimal {
	if leg.IsZero() || parent.IsZero() {
		return leg
	}
	if parent.Sign() < 0 {
		return leg.Abs().Neg()
	}
	return leg.Abs()
}

// Sum adds amounts exactly.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
