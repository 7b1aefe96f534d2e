// Package lending models the shared lending pool. The service only issues
// supply/withdraw/borrow/repay commands and pool-level reads; per-user
// positions are defined for completeness of the catalogue but the deployed
// ledger program exposes no query path for them.
package lending

import (
	"math/big"
	"time"

	"github.com/mailpay-labs/mailpay/internal/domain/asset"
)

// MaxLoanToValueBps caps borrows at 75% of the supplied collateral value.
const MaxLoanToValueBps = 7500

// LiquidationThreshold is the health factor below which a position becomes
// eligible for liquidation.
const LiquidationThreshold = 1.0

// Pool holds the pool-wide aggregates read from the ledger.
type Pool struct {
	Asset          asset.Asset `json:"asset"`
	TotalLiquidity int64       `json:"total_liquidity"`
	TotalBorrowed  int64       `json:"total_borrowed"`
	SupplyRateBps  int64       `json:"supply_rate_bps"`
	BorrowRateBps  int64       `json:"borrow_rate_bps"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Available returns the liquidity not currently lent out.
func (p Pool) Available() int64 {
	avail := p.TotalLiquidity - p.TotalBorrowed
	if avail < 0 {
		return 0
	}
	return avail
}

// MaxBorrow returns the largest borrow the loan-to-value rule permits for
// the given collateral. Products are taken in big.Int so large collateral
// cannot overflow int64.
func MaxBorrow(collateral int64) int64 {
	if collateral <= 0 {
		return 0
	}
	max := new(big.Int).Mul(big.NewInt(collateral), big.NewInt(MaxLoanToValueBps))
	max.Quo(max, big.NewInt(10_000))
	return max.Int64()
}

// WithinLoanToValue reports whether a borrow respects the 75% LTV cap.
func WithinLoanToValue(borrow, collateral int64) bool {
	if borrow <= 0 || collateral <= 0 {
		return false
	}
	// borrow/collateral <= 7500/10000, kept in integers.
	lhs := new(big.Int).Mul(big.NewInt(borrow), big.NewInt(10_000))
	rhs := new(big.Int).Mul(big.NewInt(collateral), big.NewInt(MaxLoanToValueBps))
	return lhs.Cmp(rhs) <= 0
}

// Position is the per-user tuple. Kept for the catalogue; see the service
// for why it cannot currently be read back from the ledger.
type Position struct {
	Account      string  `json:"account"`
	Supplied     int64   `json:"supplied"`
	Borrowed     int64   `json:"borrowed"`
	Collateral   int64   `json:"collateral"`
	HealthFactor float64 `json:"health_factor"`
}

// Liquidatable reports whether the position may be liquidated.
func (p Position) Liquidatable() bool { return p.HealthFactor < LiquidationThreshold }
