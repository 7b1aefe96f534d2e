package asset

import (
	"fmt"
	"math"
	"strings"
)

// ToUnits converts a human-readable decimal amount into the asset's integer
// ledger units. The amount must be a plain decimal string; scientific
// notation and floats are rejected at the API boundary so no precision is
// lost on the way in.
func ToUnits(amount string, a Asset) (int64, error) {
	if !a.Valid() {
		return 0, fmt.Errorf("unsupported asset %q", a)
	}

	s := strings.TrimSpace(amount)
	if s == "" {
		return 0, fmt.Errorf("amount is empty")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("amount must be positive")
	}
	if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if !digitsOnly(whole) || (frac != "" && !digitsOnly(frac)) {
		return 0, fmt.Errorf("amount %q is not a decimal number", amount)
	}
	if len(frac) > a.Decimals() {
		return 0, fmt.Errorf("amount %q exceeds %s precision of %d decimal places", amount, a, a.Decimals())
	}

	// Right-pad the fraction to the asset's full precision.
	frac += strings.Repeat("0", a.Decimals()-len(frac))

	var units int64
	for _, c := range whole + frac {
		d := int64(c - '0')
		if units > (math.MaxInt64-d)/10 {
			return 0, fmt.Errorf("amount %q overflows ledger units", amount)
		}
		units = units*10 + d
	}
	return units, nil
}

// FromUnits renders ledger units as a decimal string at the asset's full
// precision. The output round-trips through ToUnits without loss.
func FromUnits(units int64, a Asset) string {
	neg := units < 0
	if neg {
		units = -units
	}

	dec := a.Decimals()
	scale := int64(1)
	for i := 0; i < dec; i++ {
		scale *= 10
	}

	out := fmt.Sprintf("%d.%0*d", units/scale, dec, units%scale)
	if neg {
		out = "-" + out
	}
	return out
}

// DecimalPlaces counts the decimal places of a plain decimal string. Used by
// the display-currency rule that caps payment amounts at two places.
func DecimalPlaces(amount string) int {
	s := strings.TrimSpace(amount)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(strings.TrimRight(s[i+1:], "0"))
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
