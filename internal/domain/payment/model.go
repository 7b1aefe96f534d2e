// Package payment defines the email-addressed payment record and its status
// machine: pending -> pending with recipient address -> claimed or failed.
// A failed payment stays retryable; claimed and failed are the only terminal
// statuses and records are never deleted.
package payment

import (
	"time"

	"github.com/mailpay-labs/mailpay/internal/domain/asset"
)

// Status is the lifecycle status of a payment.
type Status string

const (
	StatusPending Status = "pending"
	StatusClaimed Status = "claimed"
	StatusFailed  Status = "failed"
)

// Payment is a promise to move funds from a sender to whoever controls the
// recipient email. TransactionRef is set exactly when a transfer completed,
// which is the same moment the status becomes claimed.
type Payment struct {
	ID               string      `db:"id" json:"id"`
	Amount           int64       `db:"amount" json:"amount"`
	Asset            asset.Asset `db:"asset" json:"asset"`
	RecipientEmail   string      `db:"recipient_email" json:"recipient_email"`
	SenderAddress    string      `db:"sender_address" json:"sender_address,omitempty"`
	RecipientAddress string      `db:"recipient_address" json:"recipient_address,omitempty"`
	Status           Status      `db:"status" json:"status"`
	TransactionRef   string      `db:"transaction_ref" json:"transaction_ref,omitempty"`
	ErrorMessage     string      `db:"error_message" json:"error_message,omitempty"`
	Attempts         int         `db:"attempts" json:"attempts"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	ClaimedAt        time.Time   `db:"claimed_at" json:"claimed_at,omitempty"`
}

// Claimed reports whether a recipient has attached their address. Claiming
// proves identity only; it is execution that moves funds.
func (p Payment) Claimed() bool { return p.RecipientAddress != "" }

// Executed reports whether the transfer has completed on the ledger.
func (p Payment) Executed() bool { return p.TransactionRef != "" }
