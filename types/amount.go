package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AmountScale is the number of Amount units in one whole currency unit.
const AmountScale = 100_000_000

// Amount is a fixed-point decimal with eight fractional digits.
// Crypto processors quote prices at this precision, and the credit table
// keys crypto products by the eight-digit rendering of the paid amount.
//
// Examples:
//   - Units(25) = 25.00000000
//   - MustParseAmount("0.5") = 0.50000000
type Amount int64

// Units creates an Amount from a whole number of currency units.
func Units(whole int64) Amount { return Amount(whole * AmountScale) }

// AmountFromFloat rounds f to eight decimal places.
func AmountFromFloat(f float64) Amount {
	return Amount(math.Round(f * AmountScale))
}

// ParseAmount parses a decimal string such as "25", "25.5" or
// "25.00000000". Digits beyond the eighth decimal are rounded.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("types: parse amount: empty string")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("types: parse amount %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("types: parse amount %q: not a finite number", s)
	}
	return AmountFromFloat(f), nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the amount with exactly eight decimals.
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%08d", sign, v/AmountScale, v%AmountScale)
}

// Float64 returns the amount as a float.
func (a Amount) Float64() float64 { return float64(a) / AmountScale }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// MarshalJSON encodes the amount as its eight-decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var f float64
		if ferr := json.Unmarshal(data, &f); ferr != nil {
			return fmt.Errorf("types: amount must be a string or number: %w", ferr)
		}
		*a = AmountFromFloat(f)
		return nil
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
