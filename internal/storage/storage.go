// Package storage declares the durable store surface. Payments are the only
// records the service owns; escrows, streams and pools are read through the
// ledger and never persisted here.
package storage

import (
	"context"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/payment"
)

// ErrPaymentNotFound is returned for lookups of unknown payment ids.
var ErrPaymentNotFound = apperr.New(apperr.KindNotFound, "payment not found")

// PaymentStore persists payment records. Records are append-and-update only;
// nothing is ever deleted.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *payment.Payment) error
	UpdatePayment(ctx context.Context, p *payment.Payment) error
	GetPayment(ctx context.Context, id string) (*payment.Payment, error)
	ListPaymentsByEmail(ctx context.Context, email string) ([]*payment.Payment, error)
	ListPaymentsBySender(ctx context.Context, sender string) ([]*payment.Payment, error)
}
