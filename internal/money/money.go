// Package money implements fixed-point currency amounts.
//
// An Amount is a count of minor units (paise, cents). All ledger arithmetic
// is integer arithmetic on Amounts; decimal text only appears at the API and
// report boundaries, where it is parsed and formatted with shopspring/decimal.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by an Amount.
const Scale = 2

// Epsilon is the smallest representable difference between two Amounts.
// It only matters when comparing against externally supplied decimals.
const Epsilon Amount = 1

var minorPerMajor = decimal.New(1, Scale)

// ErrPrecision is returned when a decimal carries more than Scale fractional digits.
var ErrPrecision = errors.New("amount has more than 2 decimal places")

// Amount is a monetary value in minor units.
type Amount int64

// Zero is the zero Amount.
const Zero Amount = 0

// FromMinor returns an Amount of n minor units.
func FromMinor(n int64) Amount { return Amount(n) }

// FromMajor returns an Amount of n whole currency units.
func FromMajor(n int64) Amount { return Amount(n * 100) }

// Parse converts decimal text such as "21186.50" to an Amount.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("parse amount: empty string")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// MustParse is like Parse but panics on error. Use for literals in tests and defaults.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromDecimal converts a decimal to an Amount, rejecting sub-minor precision.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Mul(minorPerMajor)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%s: %w", d.String(), ErrPrecision)
	}
	if !minor.IsInteger() || minor.Abs().GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, fmt.Errorf("amount %s out of range", d.String())
	}
	return Amount(minor.IntPart()), nil
}

// Decimal returns the amount in major units as a decimal.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

// String formats the amount with exactly two fractional digits.
func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// Minor returns the raw minor-unit count.
func (a Amount) Minor() int64 { return int64(a) }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool { return a < 0 }

// Neg returns -a.
func (a Amount) Neg() Amount { return -a }

// Abs returns |a|.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// Sum adds a list of amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

// WithinEpsilon reports whether a and b differ by no more than Epsilon.
// Engine invariants compare exactly; this is for reconciling against
// externally computed decimals.
func WithinEpsilon(a, b Amount) bool {
	return (a - b).Abs() <= Epsilon
}

// MarshalJSON encodes the amount as a decimal string, e.g. "25000.00".
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
