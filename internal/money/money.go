package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by an Amount.
const Scale = 2

// ErrInvalidAmount is returned when a value cannot be represented as an Amount.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount holds money in minor units (paise). 150.25 is stored as 15025.
type Amount int64

// Parse converts a decimal string such as "150.25" into an Amount. Values with
// more than two fractional digits are rejected rather than rounded.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// FromDecimal converts d into minor units.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(Scale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d.String(), Scale)
	}
	if minor.Abs().GreaterThan(decimal.NewFromInt(1 << 62)) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d.String())
	}
	return Amount(minor.IntPart()), nil
}

// FromMajor builds an Amount from whole units, e.g. FromMajor(10) is 10.00.
func FromMajor(units int64) Amount {
	return Amount(units * 100)
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

// IsPositive reports whether a is strictly greater than zero.
func (a Amount) IsPositive() bool {
	return a > 0
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// MarshalJSON renders the amount as a bare JSON number in major units.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal().String()), nil
}

// UnmarshalJSON accepts either a JSON number or a numeric string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
