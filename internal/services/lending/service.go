// Package lending fronts the shared lending pool: supply and withdraw
// liquidity, borrow against supplied collateral, repay debt, and read the
// pool aggregates back. The loan-to-value rule is checked here before any
// submission and enforced again by the ledger program.
package lending

import (
	"context"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/internal/domain/lending"
	"github.com/mailpay-labs/mailpay/internal/ledger"
	"github.com/mailpay-labs/mailpay/internal/metrics"
	"github.com/mailpay-labs/mailpay/internal/validate"
	"github.com/mailpay-labs/mailpay/pkg/logger"
)

// ErrLoanToValueExceeded is returned when a stated collateral cannot cover a
// borrow under the 75% cap, before anything reaches the ledger.
var ErrLoanToValueExceeded = apperr.New(apperr.KindPrecondition, "the borrow would exceed the allowed loan-to-value ratio")

// ErrPositionUnavailable is returned by GetPosition: the deployed ledger
// program keeps per-user positions internally but exposes no query path for
// them, so the service cannot read one back.
var ErrPositionUnavailable = apperr.New(apperr.KindPrecondition, "per-account positions cannot be read from the ledger")

// Config tunes the lending service.
type Config struct {
	// HubContract is the script hash the pool methods live on.
	HubContract string
	// MaxAmount caps single-operation size in ledger units; 0 disables the
	// cap.
	MaxAmount int64 `env:"LENDING_MAX_AMOUNT,default=0" yaml:"max_amount"`
}

// Service drives the lending pool against the ledger.
type Service struct {
	gw  ledger.Gateway
	cfg Config
	log *logger.Logger
}

// New builds a lending service.
func New(gw ledger.Gateway, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("lending")
	}
	return &Service{gw: gw, cfg: cfg, log: log}
}

// Supply deposits liquidity into the pool.
func (s *Service) Supply(ctx context.Context, account, amount string, a asset.Asset) (lending.Pool, error) {
	return s.operate(ctx, ledger.MethodSupply, "supply", account, amount, a)
}

// Withdraw takes previously supplied liquidity back out, as long as the pool
// can cover it and the caller's debt stays within the loan-to-value cap.
func (s *Service) Withdraw(ctx context.Context, account, amount string, a asset.Asset) (lending.Pool, error) {
	return s.operate(ctx, ledger.MethodWithdraw, "withdraw", account, amount, a)
}

// Borrow draws pool liquidity against the caller's supplied collateral, up to
// 75% of its value. collateral, when non-empty, states the caller's supplied
// collateral for a local pre-check; the ledger program enforces the same cap
// against the authoritative figure either way.
func (s *Service) Borrow(ctx context.Context, account, amount string, a asset.Asset, collateral string) (lending.Pool, error) {
	if collateral != "" {
		borrowUnits, err := validate.DisplayAmount(amount, a)
		if err != nil {
			return lending.Pool{}, err
		}
		collateralUnits, err := validate.DisplayAmount(collateral, a)
		if err != nil {
			return lending.Pool{}, err
		}
		if !lending.WithinLoanToValue(borrowUnits, collateralUnits) {
			return lending.Pool{}, ErrLoanToValueExceeded
		}
	}
	return s.operate(ctx, ledger.MethodBorrow, "borrow", account, amount, a)
}

// Repay pays debt down. Overpayment is clamped to the outstanding debt by the
// ledger program.
func (s *Service) Repay(ctx context.Context, account, amount string, a asset.Asset) (lending.Pool, error) {
	return s.operate(ctx, ledger.MethodRepay, "repay", account, amount, a)
}

// GetPool reads the pool aggregates for an asset.
func (s *Service) GetPool(ctx context.Context, a asset.Asset) (lending.Pool, error) {
	if !a.Valid() {
		return lending.Pool{}, apperr.Newf(apperr.KindValidation, "unsupported asset %q", a)
	}
	stack, err := s.gw.Query(ctx, s.cfg.HubContract, ledger.MethodGetPool, []any{string(a)})
	if err != nil {
		return lending.Pool{}, err
	}
	if len(stack) == 0 {
		return lending.Pool{}, apperr.New(apperr.KindLedger, "pool query returned nothing")
	}
	pool, err := ledger.ParsePool(stack[0])
	if err != nil {
		return lending.Pool{}, apperr.Wrap(apperr.KindLedger, "parse pool record", err)
	}
	return pool, nil
}

// GetPosition would return the caller's supplied/borrowed tuple; see
// ErrPositionUnavailable.
func (s *Service) GetPosition(_ context.Context, account string) (lending.Position, error) {
	if err := validate.Address(account); err != nil {
		return lending.Position{}, err
	}
	return lending.Position{}, ErrPositionUnavailable
}

// MaxBorrow reports the largest borrow the loan-to-value rule permits for the
// given collateral, for display purposes.
func (s *Service) MaxBorrow(collateral int64) int64 {
	return lending.MaxBorrow(collateral)
}

func (s *Service) operate(ctx context.Context, method, name, account, amount string, a asset.Asset) (lending.Pool, error) {
	if err := validate.Address(account); err != nil {
		return lending.Pool{}, err
	}
	units, err := validate.DisplayAmount(amount, a)
	if err != nil {
		return lending.Pool{}, err
	}
	if err := validate.Amount(units, s.cfg.MaxAmount); err != nil {
		return lending.Pool{}, err
	}

	h, err := s.gw.Submit(ctx, ledger.Operation{
		Contract: s.cfg.HubContract,
		Method:   method,
		Args:     []any{string(a), units},
		Signer:   account,
	})
	if err != nil {
		return lending.Pool{}, err
	}
	conf, err := s.gw.AwaitConfirmation(ctx, h)
	if err != nil {
		return lending.Pool{}, err
	}
	if !conf.Success {
		return lending.Pool{}, ledger.AbortError(conf.FaultMessage)
	}

	metrics.LendingOps.WithLabelValues(name).Inc()
	s.log.WithField("operation", name).WithField("asset", string(a)).WithField("amount", units).Infof("pool operation confirmed")
	return s.GetPool(ctx, a)
}
