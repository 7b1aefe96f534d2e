// Package postgres is the production PaymentStore, backed by PostgreSQL via
// sqlx with schema migrations embedded in the binary.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/internal/domain/payment"
	"github.com/mailpay-labs/mailpay/internal/storage"
	"github.com/mailpay-labs/mailpay/pkg/logger"
)

// Config holds the database connection settings.
type Config struct {
	DSN             string        `env:"DATABASE_URL" yaml:"dsn"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=10" yaml:"max_open_conns"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=5" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=30m" yaml:"conn_max_lifetime"`
}

// Store implements storage.PaymentStore on PostgreSQL.
type Store struct {
	db  *sqlx.DB
	log *logger.Logger
}

// Open connects, applies pool settings and runs pending migrations.
func Open(cfg Config, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewDefault("postgres")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "open database", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindPersistence, "ping database", err)
	}
	if err := Migrate(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	log.Infof("database connected, schema up to date")
	return &Store{db: db, log: log}, nil
}

// NewStore wraps an existing connection without running migrations. Used by
// tests that drive the store through a mock.
func NewStore(db *sqlx.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDefault("postgres")
	}
	return &Store{db: db, log: log}
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// paymentRow mirrors the payments table; claimed_at is the only nullable
// column.
type paymentRow struct {
	ID               string       `db:"id"`
	Amount           int64        `db:"amount"`
	Asset            string       `db:"asset"`
	RecipientEmail   string       `db:"recipient_email"`
	SenderAddress    string       `db:"sender_address"`
	RecipientAddress string       `db:"recipient_address"`
	Status           string       `db:"status"`
	TransactionRef   string       `db:"transaction_ref"`
	ErrorMessage     string       `db:"error_message"`
	Attempts         int          `db:"attempts"`
	CreatedAt        time.Time    `db:"created_at"`
	ClaimedAt        sql.NullTime `db:"claimed_at"`
}

func toRow(p *payment.Payment) paymentRow {
	row := paymentRow{
		ID:               p.ID,
		Amount:           p.Amount,
		Asset:            string(p.Asset),
		RecipientEmail:   p.RecipientEmail,
		SenderAddress:    p.SenderAddress,
		RecipientAddress: p.RecipientAddress,
		Status:           string(p.Status),
		TransactionRef:   p.TransactionRef,
		ErrorMessage:     p.ErrorMessage,
		Attempts:         p.Attempts,
		CreatedAt:        p.CreatedAt,
	}
	if !p.ClaimedAt.IsZero() {
		row.ClaimedAt = sql.NullTime{Time: p.ClaimedAt, Valid: true}
	}
	return row
}

func fromRow(row paymentRow) *payment.Payment {
	p := &payment.Payment{
		ID:               row.ID,
		Amount:           row.Amount,
		Asset:            asset.Asset(row.Asset),
		RecipientEmail:   row.RecipientEmail,
		SenderAddress:    row.SenderAddress,
		RecipientAddress: row.RecipientAddress,
		Status:           payment.Status(row.Status),
		TransactionRef:   row.TransactionRef,
		ErrorMessage:     row.ErrorMessage,
		Attempts:         row.Attempts,
		CreatedAt:        row.CreatedAt.UTC(),
	}
	if row.ClaimedAt.Valid {
		p.ClaimedAt = row.ClaimedAt.Time.UTC()
	}
	return p
}

const paymentColumns = `id, amount, asset, recipient_email, sender_address,
	recipient_address, status, transaction_ref, error_message, attempts,
	created_at, claimed_at`

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	row := toRow(p)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (:id, :amount, :asset, :recipient_email, :sender_address,
			:recipient_address, :status, :transaction_ref, :error_message,
			:attempts, :created_at, :claimed_at)`, row)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "insert payment", err)
	}
	return nil
}

func (s *Store) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	row := toRow(p)
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE payments SET
			sender_address = :sender_address,
			recipient_address = :recipient_address,
			status = :status,
			transaction_ref = :transaction_ref,
			error_message = :error_message,
			attempts = :attempts,
			claimed_at = :claimed_at
		WHERE id = :id`, row)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "update payment", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "update payment", err)
	}
	if affected == 0 {
		return storage.ErrPaymentNotFound
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	var row paymentRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrPaymentNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "get payment", err)
	}
	return fromRow(row), nil
}

func (s *Store) ListPaymentsByEmail(ctx context.Context, email string) ([]*payment.Payment, error) {
	return s.listPayments(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE recipient_email = $1
		ORDER BY created_at DESC, id`, email)
}

func (s *Store) ListPaymentsBySender(ctx context.Context, sender string) ([]*payment.Payment, error) {
	return s.listPayments(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE sender_address = $1
		ORDER BY created_at DESC, id`, sender)
}

func (s *Store) listPayments(ctx context.Context, query string, arg any) ([]*payment.Payment, error) {
	var rows []paymentRow
	if err := s.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list payments", err)
	}
	out := make([]*payment.Payment, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}
