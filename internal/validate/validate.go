// Package validate holds the structural and business-rule checks shared by
// the lifecycle services. All checks run before any ledger call.
package validate

import (
	"regexp"
	"strings"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/asset"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Email normalizes an email address to its canonical lowercase form and
// validates its shape.
func Email(raw string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(normalized) {
		return "", apperr.Newf(apperr.KindValidation, "invalid email address %q", raw)
	}
	return normalized, nil
}

// Address checks that the value is a well-formed Neo N3 address.
func Address(addr string) error {
	if _, err := address.StringToUint160(addr); err != nil {
		return apperr.Newf(apperr.KindValidation, "invalid address %q", addr)
	}
	return nil
}

// Amount checks that an amount in ledger units is positive and, when a
// ceiling is configured (> 0), within it.
func Amount(units, ceiling int64) error {
	if units <= 0 {
		return apperr.New(apperr.KindValidation, "amount must be greater than zero")
	}
	if ceiling > 0 && units > ceiling {
		return apperr.New(apperr.KindValidation, "amount exceeds the configured ceiling")
	}
	return nil
}

// DisplayAmount parses a user-entered decimal amount, enforcing the
// two-decimal-place display rule before converting to ledger units.
func DisplayAmount(amount string, a asset.Asset) (int64, error) {
	if asset.DecimalPlaces(amount) > 2 {
		return 0, apperr.New(apperr.KindValidation, "amount may have at most two decimal places")
	}
	units, err := asset.ToUnits(amount, a)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindValidation, "invalid amount", err)
	}
	if units <= 0 {
		return 0, apperr.New(apperr.KindValidation, "amount must be greater than zero")
	}
	return units, nil
}

// TimeWindow checks a release/expiry pair for time-locked escrows: the
// release must be strictly in the future and the expiry strictly after it.
func TimeWindow(release, expiry, now time.Time) error {
	if release.IsZero() || expiry.IsZero() {
		return apperr.New(apperr.KindValidation, "release and expiry times are required")
	}
	if !release.After(now) {
		return apperr.New(apperr.KindValidation, "release time must be in the future")
	}
	if !expiry.After(release) {
		return apperr.New(apperr.KindValidation, "expiry time must be after the release time")
	}
	return nil
}

// Bounds checks the optional release/expiry pair of an arbitrated escrow.
// Either bound may be zero; a set bound must be strictly in the future, and
// the ordering rule applies only when both are set.
func Bounds(release, expiry, now time.Time) error {
	if !release.IsZero() && !release.After(now) {
		return apperr.New(apperr.KindValidation, "release time must be in the future")
	}
	if !expiry.IsZero() && !expiry.After(now) {
		return apperr.New(apperr.KindValidation, "expiry time must be in the future")
	}
	if !release.IsZero() && !expiry.IsZero() && !expiry.After(release) {
		return apperr.New(apperr.KindValidation, "expiry time must be after the release time")
	}
	return nil
}

// Schedule checks a vesting schedule: the end must follow the start, and a
// non-zero cliff must fall inside [start, end).
func Schedule(start, end, cliff time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperr.New(apperr.KindValidation, "start and end times are required")
	}
	if !end.After(start) {
		return apperr.New(apperr.KindValidation, "end time must be after the start time")
	}
	if !cliff.IsZero() {
		if cliff.Before(start) || !cliff.Before(end) {
			return apperr.New(apperr.KindValidation, "cliff must fall within the vesting window")
		}
	}
	return nil
}
