package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/internal/domain/payment"
)

func TestMemoryCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	p := &payment.Payment{
		ID:             "pay-1",
		Amount:         5_000_000_000,
		Asset:          asset.GAS,
		RecipientEmail: "bob@example.com",
		Status:         payment.StatusPending,
		CreatedAt:      time.Unix(1_700_000_000, 0).UTC(),
	}
	require.NoError(t, store.CreatePayment(ctx, p))

	got, err := store.GetPayment(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, *p, *got)

	// Mutating the returned copy must not touch stored state.
	got.Status = payment.StatusFailed
	again, err := store.GetPayment(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, again.Status)

	p.Status = payment.StatusClaimed
	p.TransactionRef = "0xabc"
	require.NoError(t, store.UpdatePayment(ctx, p))

	got, err = store.GetPayment(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusClaimed, got.Status)
	assert.Equal(t, "0xabc", got.TransactionRef)
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, err := store.GetPayment(ctx, "missing")
	assert.True(t, errors.Is(err, ErrPaymentNotFound))

	err = store.UpdatePayment(ctx, &payment.Payment{ID: "missing"})
	assert.True(t, errors.Is(err, ErrPaymentNotFound))
}

func TestMemoryListOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	base := time.Unix(1_700_000_000, 0).UTC()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreatePayment(ctx, &payment.Payment{
			ID:             id,
			Amount:         100,
			Asset:          asset.USDL,
			RecipientEmail: "bob@example.com",
			SenderAddress:  "NSenderAddr",
			Status:         payment.StatusPending,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.CreatePayment(ctx, &payment.Payment{
		ID:             "other",
		Amount:         100,
		Asset:          asset.USDL,
		RecipientEmail: "alice@example.com",
		Status:         payment.StatusPending,
		CreatedAt:      base,
	}))

	byEmail, err := store.ListPaymentsByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	require.Len(t, byEmail, 3)
	assert.Equal(t, "c", byEmail[0].ID)
	assert.Equal(t, "a", byEmail[2].ID)

	bySender, err := store.ListPaymentsBySender(ctx, "NSenderAddr")
	require.NoError(t, err)
	assert.Len(t, bySender, 3)

	none, err := store.ListPaymentsByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, none)
}
