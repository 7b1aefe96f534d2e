package escrow

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/escrow"
	"github.com/mailpay-labs/mailpay/internal/ledger"
	"github.com/mailpay-labs/mailpay/pkg/logger"
)

// SweeperConfig tunes the background expiry sweeper.
type SweeperConfig struct {
	// Enabled turns the sweeper on.
	Enabled bool `env:"SWEEPER_ENABLED,default=false" yaml:"enabled"`
	// Schedule is a cron expression; the default runs every minute.
	Schedule string `env:"SWEEPER_SCHEDULE,default=@every 1m" yaml:"schedule"`
	// Operator is the address the refund transactions are signed with.
	// Expired-escrow refunds may be triggered by anyone; the funds always
	// return to the sender.
	Operator string `env:"SWEEPER_OPERATOR" yaml:"operator"`
}

// Sweeper periodically refunds escrows whose expiry deadline has passed, so
// senders get their funds back without having to poll themselves.
type Sweeper struct {
	svc  *Service
	cfg  SweeperConfig
	cron *cron.Cron
	log  *logger.Logger
}

// NewSweeper builds the sweeper around an escrow service.
func NewSweeper(svc *Service, cfg SweeperConfig, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("escrow-sweeper")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	return &Sweeper{svc: svc, cfg: cfg, log: log}
}

// Name implements system.Service.
func (w *Sweeper) Name() string { return "escrow-sweeper" }

// Start implements system.Service.
func (w *Sweeper) Start(context.Context) error {
	if w.cfg.Operator == "" {
		return apperr.New(apperr.KindValidation, "sweeper requires an operator address")
	}

	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.cfg.Schedule, w.sweep); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid sweeper schedule", err)
	}
	w.cron.Start()
	w.log.WithField("schedule", w.cfg.Schedule).Infof("expiry sweeper started")
	return nil
}

// Stop implements system.Service. It waits for a running sweep to finish.
func (w *Sweeper) Stop(ctx context.Context) error {
	if w.cron == nil {
		return nil
	}
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	w.log.Infof("expiry sweeper stopped")
	return nil
}

// sweep walks the newest escrows and refunds every expired one.
func (w *Sweeper) sweep() {
	ctx := context.Background()
	now := w.svc.now()

	stack, err := w.svc.gw.Query(ctx, w.svc.cfg.HubContract, ledger.MethodGetEscrowCount, nil)
	if err != nil || len(stack) == 0 {
		w.log.WithError(err).Warnf("sweep: escrow count query failed")
		return
	}
	count, err := ledger.ParseInt64(stack[0])
	if err != nil {
		w.log.WithError(err).Warnf("sweep: bad escrow count")
		return
	}

	floor := int64(1)
	if count > w.svc.cfg.ListScanLimit {
		floor = count - w.svc.cfg.ListScanLimit + 1
	}

	refunded := 0
	for id := count; id >= floor; id-- {
		v, err := w.svc.Get(ctx, id)
		if err != nil {
			continue
		}
		if v.Escrow.StatusAt(now) != escrow.StatusExpired {
			continue
		}
		if _, err := w.svc.ClaimExpired(ctx, id, w.cfg.Operator); err != nil {
			w.log.WithError(err).WithField("escrow_id", id).Warnf("sweep: refund failed")
			continue
		}
		refunded++
	}
	if refunded > 0 {
		w.log.WithField("count", refunded).Infof("sweep: refunded expired escrows")
	}
}
