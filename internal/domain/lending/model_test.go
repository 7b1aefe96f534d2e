package lending

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxBorrow(t *testing.T) {
	assert.Equal(t, int64(750), MaxBorrow(1000))
	assert.Equal(t, int64(75), MaxBorrow(100))
	assert.Equal(t, int64(0), MaxBorrow(0))
	assert.Equal(t, int64(0), MaxBorrow(-5))

	// Near the int64 ceiling the naive product would overflow; the result
	// must still be 75% of the collateral.
	huge := int64(math.MaxInt64)
	assert.Equal(t, huge/10_000*MaxLoanToValueBps+huge%10_000*MaxLoanToValueBps/10_000, MaxBorrow(huge))
}

func TestWithinLoanToValue(t *testing.T) {
	assert.True(t, WithinLoanToValue(750, 1000))
	assert.False(t, WithinLoanToValue(751, 1000))
	assert.False(t, WithinLoanToValue(0, 1000))
	assert.False(t, WithinLoanToValue(100, 0))

	// Large positions must not invert the check through overflow.
	huge := int64(math.MaxInt64)
	assert.True(t, WithinLoanToValue(MaxBorrow(huge), huge))
	assert.False(t, WithinLoanToValue(MaxBorrow(huge)+1, huge))
	assert.False(t, WithinLoanToValue(huge, huge))
}

func TestPoolAvailable(t *testing.T) {
	p := Pool{TotalLiquidity: 1000, TotalBorrowed: 400}
	assert.Equal(t, int64(600), p.Available())

	p.TotalBorrowed = 1200
	assert.Equal(t, int64(0), p.Available())
}

func TestPositionLiquidatable(t *testing.T) {
	assert.True(t, Position{HealthFactor: 0.99}.Liquidatable())
	assert.False(t, Position{HealthFactor: 1.0}.Liquidatable())
}
