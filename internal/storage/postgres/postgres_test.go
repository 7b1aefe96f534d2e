package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/internal/domain/payment"
	"github.com/mailpay-labs/mailpay/internal/storage"
)

var rowColumns = []string{
	"id", "amount", "asset", "recipient_email", "sender_address",
	"recipient_address", "status", "transaction_ref", "error_message",
	"attempts", "created_at", "claimed_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "postgres"), nil), mock
}

func TestCreatePayment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.CreatePayment(context.Background(), &payment.Payment{
		ID:             "3f0d8a4e-1111-2222-3333-444455556666",
		Amount:         5_000_000_000,
		Asset:          asset.GAS,
		RecipientEmail: "bob@example.com",
		Status:         payment.StatusPending,
		CreatedAt:      time.Unix(1_700_000_000, 0).UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPayment(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Unix(1_700_000_000, 0).UTC()
	claimed := created.Add(time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id").
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(
			"pay-1", int64(5_000_000_000), "GAS", "bob@example.com", "NSenderAddr",
			"NRecipientAddr", "claimed", "0xabc", "", 1, created, claimed,
		))

	p, err := store.GetPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusClaimed, p.Status)
	assert.Equal(t, asset.GAS, p.Asset)
	assert.Equal(t, claimed, p.ClaimedAt)
	assert.True(t, p.Executed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPaymentNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(rowColumns))

	_, err := store.GetPayment(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrPaymentNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePaymentNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE payments SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdatePayment(context.Background(), &payment.Payment{ID: "missing"})
	assert.True(t, errors.Is(err, storage.ErrPaymentNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPaymentsByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery("SELECT (.+) FROM payments").
		WithArgs("bob@example.com").
		WillReturnRows(sqlmock.NewRows(rowColumns).
			AddRow("pay-2", int64(200), "USDL", "bob@example.com", "", "", "pending", "", "", 0, created.Add(time.Minute), nil).
			AddRow("pay-1", int64(100), "USDL", "bob@example.com", "", "", "pending", "", "", 0, created, nil))

	list, err := store.ListPaymentsByEmail(context.Background(), "bob@example.com")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pay-2", list[0].ID)
	assert.True(t, list[1].ClaimedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistenceErrorsAreClassified(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM payments").
		WithArgs("pay-1").
		WillReturnError(errors.New("connection refused"))

	_, err := store.GetPayment(context.Background(), "pay-1")
	assert.True(t, apperr.IsKind(err, apperr.KindPersistence))
	assert.NoError(t, mock.ExpectationsWereMet())
}
