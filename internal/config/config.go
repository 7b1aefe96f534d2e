// Package config assembles the process configuration: a .env file if present,
// environment variables with defaults, and an optional YAML file that
// overrides both.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mailpay-labs/mailpay/internal/ledger"
	escrowsvc "github.com/mailpay-labs/mailpay/internal/services/escrow"
	lendingsvc "github.com/mailpay-labs/mailpay/internal/services/lending"
	paymentsvc "github.com/mailpay-labs/mailpay/internal/services/payment"
	vestingsvc "github.com/mailpay-labs/mailpay/internal/services/vesting"
	"github.com/mailpay-labs/mailpay/internal/storage/postgres"
	"github.com/mailpay-labs/mailpay/pkg/logger"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST,default=0.0.0.0" yaml:"host"`
	Port            int           `env:"SERVER_PORT,default=8080" yaml:"port"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=15s" yaml:"read_timeout"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=30s" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=20s" yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// LoggingConfig holds the log settings in env/yaml form.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"LOG_FORMAT,default=text" yaml:"format"`
	Output string `env:"LOG_OUTPUT,default=stdout" yaml:"output"`
}

// Logger converts to the logger package's form.
func (l LoggingConfig) Logger() logger.LoggingConfig {
	return logger.LoggingConfig{Level: l.Level, Format: l.Format, Output: l.Output}
}

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Logging  LoggingConfig           `yaml:"logging"`
	Database postgres.Config         `yaml:"database"`
	Ledger   ledger.Config           `yaml:"ledger"`
	Payments paymentsvc.Config       `yaml:"payments"`
	Escrow   escrowsvc.Config        `yaml:"escrow"`
	Vesting  vestingsvc.Config       `yaml:"vesting"`
	Lending  lendingsvc.Config       `yaml:"lending"`
	Sweeper  escrowsvc.SweeperConfig `yaml:"sweeper"`
}

// Load builds the configuration. A .env file in the working directory is
// loaded first; path, when non-empty, names a YAML file whose keys override
// the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Every service targets the same hub contract.
	cfg.Payments.HubContract = cfg.Ledger.HubContract
	cfg.Escrow.HubContract = cfg.Ledger.HubContract
	cfg.Vesting.HubContract = cfg.Ledger.HubContract
	cfg.Lending.HubContract = cfg.Ledger.HubContract

	return cfg, nil
}
