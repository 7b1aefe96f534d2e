package ledger

import (
	"strings"

	"github.com/mailpay-labs/mailpay/internal/apperr"
)

// Abort codes raised by the hub contract. The raw exception text is never
// shown to users; each code maps to domain phrasing below.
const (
	AbortInsufficientBalance   = "E_INSUFFICIENT_BALANCE"
	AbortInsufficientLiquidity = "E_INSUFFICIENT_LIQUIDITY"
	AbortNotFound              = "E_NOT_FOUND"
	AbortAlreadyFinalized      = "E_ALREADY_FINALIZED"
	AbortNotReleasable         = "E_NOT_RELEASABLE"
	AbortNotExpired            = "E_NOT_EXPIRED"
	AbortNotAuthorized         = "E_NOT_AUTHORIZED"
	AbortNothingToClaim        = "E_NOTHING_TO_CLAIM"
	AbortStreamCancelled       = "E_STREAM_CANCELLED"
	AbortLoanToValue           = "E_LTV_EXCEEDED"
)

var abortMessages = map[string]struct {
	kind    apperr.Kind
	message string
}{
	AbortInsufficientBalance:   {apperr.KindPrecondition, "insufficient balance for this operation"},
	AbortInsufficientLiquidity: {apperr.KindPrecondition, "the pool has insufficient liquidity"},
	AbortNotFound:              {apperr.KindNotFound, "no such record on the ledger"},
	AbortAlreadyFinalized:      {apperr.KindPrecondition, "already released or cancelled"},
	AbortNotReleasable:         {apperr.KindPrecondition, "not yet releasable"},
	AbortNotExpired:            {apperr.KindPrecondition, "the expiry deadline has not passed"},
	AbortNotAuthorized:         {apperr.KindPrecondition, "the caller is not permitted to perform this operation"},
	AbortNothingToClaim:        {apperr.KindPrecondition, "nothing to claim"},
	AbortStreamCancelled:       {apperr.KindPrecondition, "the stream has been cancelled"},
	AbortLoanToValue:           {apperr.KindPrecondition, "the borrow would exceed the allowed loan-to-value ratio"},
}

// AbortError converts a contract fault message into a domain error. Known
// abort codes become precondition errors with human phrasing; anything else
// is surfaced as a ledger error wrapping the raw text.
func AbortError(fault string) error {
	for code, m := range abortMessages {
		if strings.Contains(fault, code) {
			return apperr.New(m.kind, m.message)
		}
	}
	return apperr.Newf(apperr.KindLedger, "ledger rejected the operation: %s", fault)
}
