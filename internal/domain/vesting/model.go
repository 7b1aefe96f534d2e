// Package vesting models linear unlock schedules with an optional cliff.
// Stream state is owned by the ledger; the vested amount, claimable amount
// and display progress are pure functions of the raw fields and a clock
// reading.
package vesting

import (
	"math/big"
	"time"

	"github.com/mailpay-labs/mailpay/internal/domain/asset"
)

// Stream is the read-through form of a ledger vesting stream.
type Stream struct {
	ID        int64       `json:"id"`
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient"`
	Total     int64       `json:"total"`
	Claimed   int64       `json:"claimed"`
	Asset     asset.Asset `json:"asset"`
	Start     time.Time   `json:"start"`
	End       time.Time   `json:"end"`
	Cliff     time.Time   `json:"cliff,omitempty"` // zero = no cliff
	Cancelled bool        `json:"cancelled"`
}

// VestedAt returns how much of the stream has unlocked at the given instant:
// nothing before the start or the cliff, everything at or after the end, and
// a floor-division linear interpolation in between.
func (s Stream) VestedAt(now time.Time) int64 {
	switch {
	case now.Before(s.Start):
		return 0
	case !s.Cliff.IsZero() && now.Before(s.Cliff):
		return 0
	case !now.Before(s.End):
		return s.Total
	}

	// total * elapsed / duration in big.Int to dodge int64 overflow on
	// large totals.
	elapsed := big.NewInt(now.Unix() - s.Start.Unix())
	duration := big.NewInt(s.End.Unix() - s.Start.Unix())
	vested := new(big.Int).Mul(big.NewInt(s.Total), elapsed)
	vested.Quo(vested, duration)
	return vested.Int64()
}

// ClaimableAt returns the amount the recipient could claim right now. A
// cancelled stream has nothing left to claim.
func (s Stream) ClaimableAt(now time.Time) int64 {
	if s.Cancelled {
		return 0
	}
	claimable := s.VestedAt(now) - s.Claimed
	if claimable < 0 {
		return 0
	}
	return claimable
}

// ProgressAt returns the display percentage floor(100*vested/total), clamped
// to [0, 100].
func (s Stream) ProgressAt(now time.Time) int {
	if s.Total <= 0 {
		return 0
	}
	p := new(big.Int).Mul(big.NewInt(s.VestedAt(now)), big.NewInt(100))
	p.Quo(p, big.NewInt(s.Total))
	pct := int(p.Int64())
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
