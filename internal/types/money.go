package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Cents is an amount of money in integer cents that marshals to the
// two-decimal JSON number the HTTP boundary expects; ParseAmount converts
// the other way. Internal arithmetic never touches floating point.
type Cents int64

// ParseAmount accepts a JSON number with up to two fractional digits
// ("19.9", "19.90", "19") and returns it as integer cents. It rejects
// negative, zero and over-precise values.
func ParseAmount(raw string) (Cents, error) {
	raw = strings.TrimSpace(raw)
	neg := strings.HasPrefix(raw, "-")
	whole, frac, hasFrac := strings.Cut(raw, ".")
	if neg {
		whole = strings.TrimPrefix(whole, "-")
	}
	if whole == "" {
		whole = "0"
	}
	if hasFrac {
		switch len(frac) {
		case 0:
			frac = "00"
		case 1:
			frac += "0"
		case 2:
			// exact
		default:
			return 0, fmt.Errorf("amount %q has more than two fractional digits", raw)
		}
	} else {
		frac = "00"
	}
	wholeCents, err := strconv.ParseInt(whole, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	fracCents, err := strconv.ParseInt(frac, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	cents := wholeCents*100 + fracCents
	if neg {
		cents = -cents
	}
	if cents <= 0 {
		return 0, fmt.Errorf("amount %q must be positive", raw)
	}
	return Cents(cents), nil
}

// MarshalJSON renders cents as a plain decimal with exactly two fractional
// digits, e.g. 1990 -> 19.90.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c Cents) String() string {
	v := int64(c)
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%d.%02d", v/100, v%100)
	if neg {
		s = "-" + s
	}
	return s
}
