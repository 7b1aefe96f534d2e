// Package vesting drives linear unlock streams: create a schedule, let the
// recipient claim what has vested, or cancel and split the remainder. The
// vested amount is always recomputed from the ledger record and a clock
// reading.
package vesting

import (
	"context"
	"time"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/internal/domain/vesting"
	"github.com/mailpay-labs/mailpay/internal/ledger"
	"github.com/mailpay-labs/mailpay/internal/metrics"
	"github.com/mailpay-labs/mailpay/internal/validate"
	"github.com/mailpay-labs/mailpay/pkg/logger"
)

// ErrNotFound is returned for lookups of unknown stream ids.
var ErrNotFound = apperr.New(apperr.KindNotFound, "vesting stream not found")

// Config tunes the vesting service.
type Config struct {
	// HubContract is the script hash the stream methods live on.
	HubContract string
	// MaxAmount caps single-stream totals in ledger units; 0 disables the
	// cap.
	MaxAmount int64 `env:"VESTING_MAX_AMOUNT,default=0" yaml:"max_amount"`
}

// View is a stream with its derived figures at read time.
type View struct {
	vesting.Stream
	Vested    int64 `json:"vested"`
	Claimable int64 `json:"claimable"`
	Progress  int   `json:"progress"`
}

// Service drives the vesting lifecycle against the ledger.
type Service struct {
	gw  ledger.Gateway
	cfg Config
	log *logger.Logger
	now func() time.Time
}

// New builds a vesting service.
func New(gw ledger.Gateway, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("vesting")
	}
	return &Service{gw: gw, cfg: cfg, log: log, now: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create locks the total and starts the schedule. The cliff is optional; a
// zero cliff means vesting is claimable from the start.
func (s *Service) Create(ctx context.Context, sender, recipient, amount string, a asset.Asset, start, end, cliff time.Time) (View, error) {
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
	if err := validate.Schedule(start, end, cliff); err != nil {
		return View{}, err
	}

	conf, err := s.submit(ctx, ledger.MethodCreateStream, sender, []any{
		recipient,
		string(a),
		units,
		start.Unix(),
		end.Unix(),
		unixOrZero(cliff),
	})
	if err != nil {
		return View{}, err
	}
	if len(conf.Stack) == 0 {
		return View{}, apperr.New(apperr.KindLedger, "stream creation returned no id")
	}
	id, err := ledger.ParseInt64(conf.Stack[0])
	if err != nil {
		return View{}, apperr.Wrap(apperr.KindLedger, "parse stream id", err)
	}

	s.log.WithField("stream_id", id).Infof("vesting stream created")
	return s.Get(ctx, id)
}

// Get reads one stream with its vested, claimable and progress figures.
func (s *Service) Get(ctx context.Context, id int64) (View, error) {
	stack, err := s.gw.Query(ctx, s.cfg.HubContract, ledger.MethodGetStream, []any{id})
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return View{}, ErrNotFound
		}
		return View{}, err
	}
	if len(stack) == 0 {
		return View{}, ErrNotFound
	}
	st, err := ledger.ParseStream(stack[0])
	if err != nil {
		return View{}, apperr.Wrap(apperr.KindLedger, "parse stream record", err)
	}
	return s.view(st), nil
}

// Claim pays the recipient everything vested and not yet claimed. The claimed
// amount is returned alongside the refreshed stream.
func (s *Service) Claim(ctx context.Context, id int64, caller string) (View, int64, error) {
	if err := validate.Address(caller); err != nil {
		return View{}, 0, err
	}

	conf, err := s.submit(ctx, ledger.MethodClaimVested, caller, []any{id})
	if err != nil {
		return View{}, 0, err
	}
	var claimed int64
	if len(conf.Stack) > 0 {
		claimed, _ = ledger.ParseInt64(conf.Stack[0])
	}

	metrics.VestingClaims.Inc()
	s.log.WithField("stream_id", id).WithField("amount", claimed).Infof("vested amount claimed")

	v, err := s.Get(ctx, id)
	return v, claimed, err
}

// Cancel stops the stream: the vested remainder goes to the recipient, the
// unvested remainder back to the sender. Sender only. The refunded amount is
// returned alongside the refreshed stream.
func (s *Service) Cancel(ctx context.Context, id int64, caller string) (View, int64, error) {
	if err := validate.Address(caller); err != nil {
		return View{}, 0, err
	}

	conf, err := s.submit(ctx, ledger.MethodCancelStream, caller, []any{id})
	if err != nil {
		return View{}, 0, err
	}
	var refunded int64
	if len(conf.Stack) > 0 {
		refunded, _ = ledger.ParseInt64(conf.Stack[0])
	}

	s.log.WithField("stream_id", id).WithField("refund", refunded).Infof("vesting stream cancelled")

	v, err := s.Get(ctx, id)
	return v, refunded, err
}

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

func (s *Service) view(st vesting.Stream) View {
	now := s.now()
	return View{
		Stream:    st,
		Vested:    st.VestedAt(now),
		Claimable: st.ClaimableAt(now),
		Progress:  st.ProgressAt(now),
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
