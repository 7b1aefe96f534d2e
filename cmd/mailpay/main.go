// Command mailpay runs the MailPay API server: email-addressed payments,
// escrows, vesting streams and the lending pool, all backed by a ledger node.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mailpay-labs/mailpay/internal/config"
	"github.com/mailpay-labs/mailpay/internal/runtime"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	app, err := runtime.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wire application: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
}
