// Package runtime wires configuration, storage, the ledger gateway and the
// lifecycle services into one process with a graceful shutdown path.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mailpay-labs/mailpay/internal/config"
	"github.com/mailpay-labs/mailpay/internal/httpapi"
	"github.com/mailpay-labs/mailpay/internal/ledger"
	escrowsvc "github.com/mailpay-labs/mailpay/internal/services/escrow"
	lendingsvc "github.com/mailpay-labs/mailpay/internal/services/lending"
	paymentsvc "github.com/mailpay-labs/mailpay/internal/services/payment"
	vestingsvc "github.com/mailpay-labs/mailpay/internal/services/vesting"
	"github.com/mailpay-labs/mailpay/internal/storage"
	"github.com/mailpay-labs/mailpay/internal/storage/postgres"
	"github.com/mailpay-labs/mailpay/internal/system"
	"github.com/mailpay-labs/mailpay/pkg/logger"
)

// Application owns every long-lived component of the process.
type Application struct {
	cfg      *config.Config
	log      *logger.Logger
	server   *http.Server
	services []system.Service
	closers  []io.Closer
}

// New wires the application from configuration.
func New(cfg *config.Config) (*Application, error) {
	log := logger.New(cfg.Logging.Logger()).WithField("component", "mailpay")

	app := &Application{cfg: cfg, log: log}

	var store storage.PaymentStore
	if cfg.Database.DSN != "" {
		pg, err := postgres.Open(cfg.Database, log.WithField("component", "postgres"))
		if err != nil {
			return nil, err
		}
		store = pg
		app.closers = append(app.closers, pg)
	} else {
		log.Warnf("no database configured, payments are held in memory")
		store = storage.NewMemory()
	}

	gateway, err := ledger.NewClient(cfg.Ledger, log.WithField("component", "ledger"))
	if err != nil {
		return nil, err
	}

	payments := paymentsvc.New(store, gateway, cfg.Payments, log.WithField("component", "payments"))
	escrows := escrowsvc.New(gateway, cfg.Escrow, log.WithField("component", "escrow"))
	vesting := vestingsvc.New(gateway, cfg.Vesting, log.WithField("component", "vesting"))
	lending := lendingsvc.New(gateway, cfg.Lending, log.WithField("component", "lending"))

	if cfg.Sweeper.Enabled {
		app.services = append(app.services,
			escrowsvc.NewSweeper(escrows, cfg.Sweeper, log.WithField("component", "escrow-sweeper")))
	}

	handler := httpapi.New(payments, escrows, vesting, lending, log.WithField("component", "httpapi"))
	app.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return app, nil
}

// Run starts everything and blocks until the context is cancelled or the
// server fails, then shuts down in reverse order.
func (a *Application) Run(ctx context.Context) error {
	for _, svc := range a.services {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		a.log.WithField("service", svc.Name()).Infof("service started")
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.server.Addr).Infof("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Infof("shutdown signal received")
	case err := <-errCh:
		a.shutdown()
		return fmt.Errorf("http server: %w", err)
	}

	return a.shutdown()
}

func (a *Application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.server.Shutdown(ctx); err != nil {
		firstErr = err
		a.log.WithError(err).Errorf("http server shutdown")
	}

	for i := len(a.services) - 1; i >= 0; i-- {
		svc := a.services[i]
		if err := svc.Stop(ctx); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			a.log.WithError(err).WithField("service", svc.Name()).Errorf("service stop")
		}
	}

	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	a.log.Infof("shutdown complete")
	return firstErr
}
