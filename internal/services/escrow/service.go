// Package escrow drives the conditional-lock lifecycle. The ledger owns all
// escrow state; this service validates input, submits operations and reads
// records back, deriving the status at read time.
package escrow

import (
	"context"
	"time"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/internal/domain/escrow"
	"github.com/mailpay-labs/mailpay/internal/ledger"
	"github.com/mailpay-labs/mailpay/internal/metrics"
	"github.com/mailpay-labs/mailpay/internal/validate"
	"github.com/mailpay-labs/mailpay/pkg/logger"
)

// ErrNotFound is returned for lookups of unknown escrow ids.
var ErrNotFound = apperr.New(apperr.KindNotFound, "escrow not found")

// Config tunes the escrow service.
type Config struct {
	// HubContract is the script hash the escrow methods live on.
	HubContract string
	// MaxAmount caps single-escrow size in ledger units; 0 disables the cap.
	MaxAmount int64 `env:"ESCROW_MAX_AMOUNT,default=0" yaml:"max_amount"`
	// ListScanLimit bounds how many of the newest ids a participant listing
	// walks.
	ListScanLimit int64 `env:"ESCROW_LIST_SCAN_LIMIT,default=500" yaml:"list_scan_limit"`
}

// View is an escrow with its status derived at read time.
type View struct {
	escrow.Escrow
	Variant    Variant       `json:"variant"`
	Arbitrator string        `json:"arbitrator,omitempty"`
	Release    *time.Time    `json:"release_time,omitempty"`
	Expiry     *time.Time    `json:"expiry_time,omitempty"`
	Status     escrow.Status `json:"status"`
}

// Variant aliases the domain variant for JSON rendering.
type Variant = escrow.Variant

// Service drives the escrow lifecycle against the ledger.
type Service struct {
	gw  ledger.Gateway
	cfg Config
	log *logger.Logger
	now func() time.Time
}

// New builds an escrow service.
func New(gw ledger.Gateway, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("escrow")
	}
	if cfg.ListScanLimit <= 0 {
		cfg.ListScanLimit = 500
	}
	return &Service{gw: gw, cfg: cfg, log: log, now: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateStandard locks funds releasable by the recipient at any time.
func (s *Service) CreateStandard(ctx context.Context, sender, recipient, amount string, a asset.Asset, memo string) (View, error) {
	return s.create(ctx, sender, recipient, amount, a, memo, escrow.StandardTerms{})
}

// CreateTimeLocked locks funds inside a release/expiry window.
func (s *Service) CreateTimeLocked(ctx context.Context, sender, recipient, amount string, a asset.Asset, memo string, release, expiry time.Time) (View, error) {
	if err := validate.TimeWindow(release, expiry, s.now()); err != nil {
		return View{}, err
	}
	return s.create(ctx, sender, recipient, amount, a, memo, escrow.TimeLockTerms{Release: release, Expiry: expiry})
}

// CreateArbitrated locks funds an arbitrator may release regardless of the
// optional time window.
func (s *Service) CreateArbitrated(ctx context.Context, sender, recipient, arbitrator, amount string, a asset.Asset, memo string, release, expiry time.Time) (View, error) {
	if err := validate.Address(arbitrator); err != nil {
		return View{}, err
	}
	// Unlike time-locked escrows, each bound stands on its own here: a
	// release-only or expiry-only escrow is valid.
	if err := validate.Bounds(release, expiry, s.now()); err != nil {
		return View{}, err
	}
	return s.create(ctx, sender, recipient, amount, a, memo, escrow.ArbitratedTerms{Arbitrator: arbitrator, Release: release, Expiry: expiry})
}

func (s *Service) create(ctx context.Context, sender, recipient, amount string, a asset.Asset, memo string, terms escrow.Terms) (View, error) {
	if err := validate.Address(sender); err != nil {
		return View{}, err
	}
	if err := validate.Address(recipient); err != nil {
		return View{}, err
	}
	units, err := validate.DisplayAmount(amount, a)
	if err != nil {
		return View{}, err
	}
	if err := validate.Amount(units, s.cfg.MaxAmount); err != nil {
		return View{}, err
	}

	conf, err := s.submit(ctx, ledger.MethodCreateEscrow, sender, []any{
		variantCode(terms.Variant()),
		recipient,
		arbitratorOf(terms),
		string(a),
		units,
		unixOrZero(terms.ReleaseTime()),
		unixOrZero(terms.ExpiryTime()),
		memo,
	})
	if err != nil {
		return View{}, err
	}
	if len(conf.Stack) == 0 {
		return View{}, apperr.New(apperr.KindLedger, "escrow creation returned no id")
	}
	id, err := ledger.ParseInt64(conf.Stack[0])
	if err != nil {
		return View{}, apperr.Wrap(apperr.KindLedger, "parse escrow id", err)
	}

	metrics.EscrowsCreated.WithLabelValues(string(terms.Variant())).Inc()
	s.log.WithField("escrow_id", id).WithField("variant", string(terms.Variant())).Infof("escrow created")
	return s.Get(ctx, id)
}

// Get reads one escrow, deriving its status from the current clock.
func (s *Service) Get(ctx context.Context, id int64) (View, error) {
	stack, err := s.gw.Query(ctx, s.cfg.HubContract, ledger.MethodGetEscrow, []any{id})
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return View{}, ErrNotFound
		}
		return View{}, err
	}
	if len(stack) == 0 {
		return View{}, ErrNotFound
	}
	e, err := ledger.ParseEscrow(stack[0])
	if err != nil {
		return View{}, apperr.Wrap(apperr.KindLedger, "parse escrow record", err)
	}
	return s.view(e), nil
}

// Release pays the escrow out to the recipient. Recipients are bound by the
// release time; the arbitrator of an arbitrated escrow is not.
func (s *Service) Release(ctx context.Context, id int64, caller string) (View, error) {
	if err := validate.Address(caller); err != nil {
		return View{}, err
	}
	if _, err := s.submit(ctx, ledger.MethodReleaseEscrow, caller, []any{id}); err != nil {
		return View{}, err
	}
	metrics.EscrowFinalizations.WithLabelValues("released").Inc()
	s.log.WithField("escrow_id", id).Infof("escrow released")
	return s.Get(ctx, id)
}

// Cancel refunds the escrow to its sender. Sender only.
func (s *Service) Cancel(ctx context.Context, id int64, caller string) (View, error) {
	if err := validate.Address(caller); err != nil {
		return View{}, err
	}
	if _, err := s.submit(ctx, ledger.MethodCancelEscrow, caller, []any{id}); err != nil {
		return View{}, err
	}
	metrics.EscrowFinalizations.WithLabelValues("cancelled").Inc()
	s.log.WithField("escrow_id", id).Infof("escrow cancelled")
	return s.Get(ctx, id)
}

// ClaimExpired refunds an escrow whose expiry deadline has passed. Anyone may
// trigger it; the funds always go back to the sender.
func (s *Service) ClaimExpired(ctx context.Context, id int64, caller string) (View, error) {
	if err := validate.Address(caller); err != nil {
		return View{}, err
	}
	if _, err := s.submit(ctx, ledger.MethodClaimExpiredEscrow, caller, []any{id}); err != nil {
		return View{}, err
	}
	metrics.EscrowFinalizations.WithLabelValues("expired").Inc()
	s.log.WithField("escrow_id", id).Infof("expired escrow refunded")
	return s.Get(ctx, id)
}

// ListByParticipant returns the newest escrows the address participates in as
// sender, recipient or arbitrator, walking ids newest-first up to the scan
// limit.
func (s *Service) ListByParticipant(ctx context.Context, addr string) ([]View, error) {
	if err := validate.Address(addr); err != nil {
		return nil, err
	}

	stack, err := s.gw.Query(ctx, s.cfg.HubContract, ledger.MethodGetEscrowCount, nil)
	if err != nil {
		return nil, err
	}
	if len(stack) == 0 {
		return nil, apperr.New(apperr.KindLedger, "escrow count query returned nothing")
	}
	count, err := ledger.ParseInt64(stack[0])
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedger, "parse escrow count", err)
	}

	floor := int64(1)
	if count > s.cfg.ListScanLimit {
		floor = count - s.cfg.ListScanLimit + 1
	}

	var out []View
	for id := count; id >= floor; id-- {
		v, err := s.Get(ctx, id)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				continue
			}
			return nil, err
		}
		if v.Sender == addr || v.Recipient == addr || v.Escrow.Arbitrator() == addr {
			out = append(out, v)
		}
	}
	return out, nil
}

// submit runs one state-changing escrow operation end to end.
func (s *Service) submit(ctx context.Context, method, signer string, args []any) (ledger.Confirmation, error) {
	h, err := s.gw.Submit(ctx, ledger.Operation{
		Contract: s.cfg.HubContract,
		Method:   method,
		Args:     args,
		Signer:   signer,
	})
	if err != nil {
		return ledger.Confirmation{}, err
	}
	conf, err := s.gw.AwaitConfirmation(ctx, h)
	if err != nil {
		return ledger.Confirmation{}, err
	}
	if !conf.Success {
		return ledger.Confirmation{}, ledger.AbortError(conf.FaultMessage)
	}
	return conf, nil
}

func (s *Service) view(e escrow.Escrow) View {
	return View{
		Escrow:     e,
		Variant:    e.Variant(),
		Arbitrator: e.Arbitrator(),
		Release:    timeOrNil(e.Terms.ReleaseTime()),
		Expiry:     timeOrNil(e.Terms.ExpiryTime()),
		Status:     e.StatusAt(s.now()),
	}
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func variantCode(v escrow.Variant) int64 {
	switch v {
	case escrow.VariantTimeLocked:
		return 1
	case escrow.VariantArbitrated:
		return 2
	default:
		return 0
	}
}

func arbitratorOf(terms escrow.Terms) string {
	if t, ok := terms.(escrow.ArbitratedTerms); ok {
		return t.Arbitrator
	}
	return ""
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
