// Package payment implements the email-addressed payment lifecycle: create a
// pending record, let the recipient claim it by attaching an address, then
// execute the transfer on the ledger. Claiming and executing are separate
// phases so a claim can never half-move funds.
package payment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/internal/domain/payment"
	"github.com/mailpay-labs/mailpay/internal/ledger"
	"github.com/mailpay-labs/mailpay/internal/metrics"
	"github.com/mailpay-labs/mailpay/internal/storage"
	"github.com/mailpay-labs/mailpay/internal/validate"
	"github.com/mailpay-labs/mailpay/pkg/logger"
)

var (
	// ErrNotClaimed means execution was requested before a recipient
	// attached their address.
	ErrNotClaimed = apperr.New(apperr.KindPrecondition, "payment has not been claimed yet")
	// ErrAlreadyExecuted means the transfer already completed; a payment
	// moves funds at most once.
	ErrAlreadyExecuted = apperr.New(apperr.KindConflict, "payment has already been executed")
	// ErrClaimedByOther means a different address already claimed the
	// payment.
	ErrClaimedByOther = apperr.New(apperr.KindConflict, "payment was claimed by a different address")
	// ErrExecutionInFlight means another execution of the same payment is
	// still running.
	ErrExecutionInFlight = apperr.New(apperr.KindConflict, "an execution of this payment is already in progress")
	// ErrSenderMismatch means the provided sender differs from the one on
	// record.
	ErrSenderMismatch = apperr.New(apperr.KindConflict, "sender address does not match the payment record")
	// ErrSenderRequired means the record has no sender address and none was
	// provided.
	ErrSenderRequired = apperr.New(apperr.KindValidation, "a sender address is required to execute this payment")
	// ErrRetriesExhausted means the payment failed too many times to retry.
	ErrRetriesExhausted = apperr.New(apperr.KindPrecondition, "payment has exhausted its execution attempts")
	// ErrInsufficientBalance means the sender cannot cover the amount.
	ErrInsufficientBalance = apperr.New(apperr.KindPrecondition, "sender balance is insufficient for this payment")
)

// Config tunes the payment service.
type Config struct {
	// HubContract is the script hash the transfer method lives on.
	HubContract string
	// MaxAmount caps single-payment size in ledger units; 0 disables the cap.
	MaxAmount int64 `env:"PAYMENTS_MAX_AMOUNT,default=0" yaml:"max_amount"`
	// MaxExecuteAttempts bounds retries of a failed payment.
	MaxExecuteAttempts int `env:"PAYMENTS_MAX_EXECUTE_ATTEMPTS,default=5" yaml:"max_execute_attempts"`
}

// Service drives the payment lifecycle against the store and the ledger.
type Service struct {
	store    storage.PaymentStore
	gw       ledger.Gateway
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
	inflight sync.Map // payment id -> struct{}
}

// New builds a payment service.
func New(store storage.PaymentStore, gw ledger.Gateway, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("payments")
	}
	if cfg.MaxExecuteAttempts <= 0 {
		cfg.MaxExecuteAttempts = 5
	}
	return &Service{
		store: store,
		gw:    gw,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create records a new pending payment addressed to an email. The amount is
// the user-entered decimal string; senderAddress may be empty and supplied
// later at execution time.
func (s *Service) Create(ctx context.Context, amount string, a asset.Asset, email, senderAddress string) (*payment.Payment, error) {
	units, err := validate.DisplayAmount(amount, a)
	if err != nil {
		return nil, err
	}
	if err := validate.Amount(units, s.cfg.MaxAmount); err != nil {
		return nil, err
	}
	normalized, err := validate.Email(email)
	if err != nil {
		return nil, err
	}
	if senderAddress != "" {
		if err := validate.Address(senderAddress); err != nil {
			return nil, err
		}
	}

	p := &payment.Payment{
		ID:             uuid.NewString(),
		Amount:         units,
		Asset:          a,
		RecipientEmail: normalized,
		SenderAddress:  senderAddress,
		Status:         payment.StatusPending,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	metrics.PaymentsCreated.Inc()
	s.log.WithField("payment_id", p.ID).WithField("email", normalized).Infof("payment created")
	return p, nil
}

// Claim attaches the recipient's address to a pending payment. Claiming with
// the already-attached address is idempotent; a different address is a
// conflict.
func (s *Service) Claim(ctx context.Context, id, recipientAddress string) (*payment.Payment, error) {
	if err := validate.Address(recipientAddress); err != nil {
		return nil, err
	}

	p, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Claimed() {
		if p.RecipientAddress == recipientAddress {
			return p, nil
		}
		return nil, ErrClaimedByOther
	}

	p.RecipientAddress = recipientAddress
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}

	s.log.WithField("payment_id", p.ID).Infof("payment claimed")
	return p, nil
}

// Execute moves the funds for a claimed payment. A failed execution leaves
// the payment retryable until the attempt budget runs out; a transport error
// leaves the record untouched because the outcome is unknown.
func (s *Service) Execute(ctx context.Context, id, senderAddress string) (*payment.Payment, error) {
	// The in-flight slot is taken before the record is read so the guards
	// below always see the outcome of any execution that just finished.
	if _, loaded := s.inflight.LoadOrStore(id, struct{}{}); loaded {
		return nil, ErrExecutionInFlight
	}
	defer s.inflight.Delete(id)

	p, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Claimed() {
		return nil, ErrNotClaimed
	}
	if p.Executed() {
		return nil, ErrAlreadyExecuted
	}
	if p.Attempts >= s.cfg.MaxExecuteAttempts {
		return nil, ErrRetriesExhausted
	}

	sender, err := s.resolveSender(p, senderAddress)
	if err != nil {
		return nil, err
	}

	// Pre-check the balance so the common failure mode never reaches the
	// ledger.
	balance, err := s.gw.GetBalance(ctx, sender, p.Asset)
	if err != nil {
		return nil, err
	}
	if balance < p.Amount {
		return nil, s.markFailed(ctx, p, sender, ErrInsufficientBalance)
	}

	h, err := s.gw.Submit(ctx, ledger.Operation{
		Contract: s.cfg.HubContract,
		Method:   ledger.MethodTransfer,
		Args:     []any{p.RecipientAddress, string(p.Asset), p.Amount},
		Signer:   sender,
	})
	if err != nil {
		if apperr.IsKind(err, apperr.KindLedger) {
			// Unknown outcome: the record stays as it is.
			metrics.PaymentExecutions.WithLabelValues("unknown").Inc()
			return nil, err
		}
		return nil, s.markFailed(ctx, p, sender, err)
	}

	conf, err := s.gw.AwaitConfirmation(ctx, h)
	if err != nil {
		metrics.PaymentExecutions.WithLabelValues("unknown").Inc()
		return nil, err
	}
	if !conf.Success {
		return nil, s.markFailed(ctx, p, sender, ledger.AbortError(conf.FaultMessage))
	}

	p.SenderAddress = sender
	p.Status = payment.StatusClaimed
	p.TransactionRef = conf.TxRef
	p.ErrorMessage = ""
	p.Attempts++
	p.ClaimedAt = s.now().UTC()
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}

	metrics.PaymentExecutions.WithLabelValues("success").Inc()
	s.log.WithField("payment_id", p.ID).WithField("tx", p.TransactionRef).Infof("payment executed")
	return p, nil
}

// Get returns a payment by id.
func (s *Service) Get(ctx context.Context, id string) (*payment.Payment, error) {
	return s.store.GetPayment(ctx, id)
}

// ListByEmail returns the payments addressed to an email, newest first.
func (s *Service) ListByEmail(ctx context.Context, email string) ([]*payment.Payment, error) {
	normalized, err := validate.Email(email)
	if err != nil {
		return nil, err
	}
	return s.store.ListPaymentsByEmail(ctx, normalized)
}

// ListBySender returns the payments created by a sender address, newest
// first.
func (s *Service) ListBySender(ctx context.Context, sender string) ([]*payment.Payment, error) {
	if err := validate.Address(sender); err != nil {
		return nil, err
	}
	return s.store.ListPaymentsBySender(ctx, sender)
}

// resolveSender reconciles the sender on record with the one provided. A
// record without a sender adopts the argument; a record with one requires a
// match.
func (s *Service) resolveSender(p *payment.Payment, senderAddress string) (string, error) {
	if p.SenderAddress == "" {
		if senderAddress == "" {
			return "", ErrSenderRequired
		}
		if err := validate.Address(senderAddress); err != nil {
			return "", err
		}
		return senderAddress, nil
	}
	if senderAddress != "" && senderAddress != p.SenderAddress {
		return "", ErrSenderMismatch
	}
	return p.SenderAddress, nil
}

// markFailed records a definite failure. The payment stays retryable; the
// cause is kept on the record for the sender to see.
func (s *Service) markFailed(ctx context.Context, p *payment.Payment, sender string, cause error) error {
	p.SenderAddress = sender
	p.Status = payment.StatusFailed
	p.ErrorMessage = cause.Error()
	p.Attempts++
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		s.log.WithError(err).WithField("payment_id", p.ID).Errorf("record execution failure")
		return err
	}

	metrics.PaymentExecutions.WithLabelValues("failed").Inc()
	s.log.WithError(cause).WithField("payment_id", p.ID).Warnf("payment execution failed")
	return cause
}
