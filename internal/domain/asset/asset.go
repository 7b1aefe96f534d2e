// Package asset defines the transferable assets and the fixed-point unit
// converter used by every lifecycle service.
package asset

import "fmt"

// Asset identifies a transferable asset on the ledger.
type Asset string

const (
	// GAS is the primary coin of the ledger.
	GAS Asset = "GAS"
	// USDL is the supported stable token.
	USDL Asset = "USDL"
)

// Decimals returns the fixed-point precision of the asset's ledger units.
func (a Asset) Decimals() int {
	switch a {
	case GAS:
		return 8
	case USDL:
		return 6
	default:
		return 0
	}
}

// Valid reports whether the asset is one of the supported assets.
func (a Asset) Valid() bool {
	return a == GAS || a == USDL
}

// Parse converts a string code into a supported Asset.
func Parse(code string) (Asset, error) {
	a := Asset(code)
	if !a.Valid() {
		return "", fmt.Errorf("unsupported asset %q", code)
	}
	return a, nil
}
