// Package escrow models the conditional lock lifecycle. An escrow is one of
// three variants — standard, time-locked, arbitrated — expressed as a closed
// set of Terms types so that illegal field combinations (a standard escrow
// with an arbitrator, say) cannot be represented.
//
// The authoritative copy of every escrow lives in the ledger. This package
// holds only the parsed read-through form plus pure derivations over it.
package escrow

import (
	"time"

	"github.com/mailpay-labs/mailpay/internal/domain/asset"
)

// Variant names an escrow flavor.
type Variant string

const (
	VariantStandard   Variant = "standard"
	VariantTimeLocked Variant = "time-locked"
	VariantArbitrated Variant = "arbitrated"
)

// Terms carries the variant-specific fields of an escrow. The interface is
// sealed: the three term types below are the only implementations.
type Terms interface {
	Variant() Variant
	// ReleaseTime is the earliest recipient-claim time; zero means no
	// restriction.
	ReleaseTime() time.Time
	// ExpiryTime is the deadline after which anyone may refund the sender;
	// zero means no expiry.
	ExpiryTime() time.Time

	sealed()
}

// StandardTerms has no release window and no arbitrator.
type StandardTerms struct{}

func (StandardTerms) Variant() Variant       { return VariantStandard }
func (StandardTerms) ReleaseTime() time.Time { return time.Time{} }
func (StandardTerms) ExpiryTime() time.Time  { return time.Time{} }
func (StandardTerms) sealed()                {}

// TimeLockTerms requires both a release time and an expiry deadline.
type TimeLockTerms struct {
	Release time.Time
	Expiry  time.Time
}

func (t TimeLockTerms) Variant() Variant       { return VariantTimeLocked }
func (t TimeLockTerms) ReleaseTime() time.Time { return t.Release }
func (t TimeLockTerms) ExpiryTime() time.Time  { return t.Expiry }
func (TimeLockTerms) sealed()                  {}

// ArbitratedTerms names an arbitrator who may release regardless of the
// optional time window.
type ArbitratedTerms struct {
	Arbitrator string
	Release    time.Time // optional
	Expiry     time.Time // optional
}

func (t ArbitratedTerms) Variant() Variant       { return VariantArbitrated }
func (t ArbitratedTerms) ReleaseTime() time.Time { return t.Release }
func (t ArbitratedTerms) ExpiryTime() time.Time  { return t.Expiry }
func (ArbitratedTerms) sealed()                  {}

// Escrow is the read-through form of a ledger escrow record.
type Escrow struct {
	ID        int64       `json:"id"`
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient"`
	Amount    int64       `json:"amount"`
	Asset     asset.Asset `json:"asset"`
	Memo      string      `json:"memo,omitempty"`
	Released  bool        `json:"released"`
	Cancelled bool        `json:"cancelled"`
	CreatedAt time.Time   `json:"created_at"`
	Terms     Terms       `json:"-"`
}

// Variant returns the escrow's variant.
func (e Escrow) Variant() Variant { return e.Terms.Variant() }

// Arbitrator returns the arbitrator address, or "" for non-arbitrated
// escrows.
func (e Escrow) Arbitrator() string {
	if t, ok := e.Terms.(ArbitratedTerms); ok {
		return t.Arbitrator
	}
	return ""
}

// Finalized reports whether the escrow reached a terminal state. At most one
// of Released and Cancelled may ever be true.
func (e Escrow) Finalized() bool { return e.Released || e.Cancelled }

// Status is the derived, never-stored escrow status.
type Status string

const (
	StatusActive    Status = "active"
	StatusLocked    Status = "locked"
	StatusExpired   Status = "expired"
	StatusReleased  Status = "released"
	StatusCancelled Status = "cancelled"
)

// StatusAt derives the status from the raw fields and a clock reading. It is
// recomputed on every read instead of cached so it can never go stale.
func (e Escrow) StatusAt(now time.Time) Status {
	switch {
	case e.Released:
		return StatusReleased
	case e.Cancelled:
		return StatusCancelled
	case !e.Terms.ExpiryTime().IsZero() && !now.Before(e.Terms.ExpiryTime()):
		return StatusExpired
	case !e.Terms.ReleaseTime().IsZero() && now.Before(e.Terms.ReleaseTime()):
		return StatusLocked
	default:
		return StatusActive
	}
}
