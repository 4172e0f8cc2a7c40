// Package config builds the runtime configuration for gophenroll.
//
// Values are layered: LoadDefaults, then an optional .env file and
// GOPHENROLL_* environment variables, then a JSON file given with -c/-config,
// then short command-line flags. Later layers win.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/shopspring/decimal"
)

// Config holds runtime settings for the batch server and the CLI.
type Config struct {
	// gRPC control endpoint. The server binds it and the CLI dials it.
	ListenAddr string

	// StorageDriver is "sqlite" or "postgres".
	StorageDriver string
	DatabaseDSN   string

	// MasterPassword derives the key that seals account and card secrets.
	MasterPassword string

	VerifierURL    string
	VerifierAPIKey string
	DriverURL      string

	Concurrency int

	DriverTimeout     time.Duration
	LoginTimeout      time.Duration
	PaymentTimeout    time.Duration
	SubmitTimeout     time.Duration
	PollInterval      time.Duration
	PollTimeout       time.Duration
	MaxPollAttempts   int
	DriverMaxRetries  uint64
	DriverRetryBase   time.Duration
	ChargeAmount      decimal.Decimal
	TaskLogCap        int
	TaskResultsWindow int

	LogLevel  string
	LogFormat string

	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.ListenAddr = "127.0.0.1:50061"
	c.StorageDriver = "sqlite"
	c.DatabaseDSN = "gophenroll.db"
	c.VerifierURL = "http://127.0.0.1:8090"
	c.DriverURL = "http://127.0.0.1:8070"
	c.Concurrency = 3
	c.DriverTimeout = 60 * time.Second
	c.LoginTimeout = 2 * time.Minute
	c.PaymentTimeout = 90 * time.Second
	c.SubmitTimeout = 10 * time.Minute
	c.PollInterval = 3 * time.Second
	c.PollTimeout = 15 * time.Second
	c.MaxPollAttempts = 20
	c.DriverMaxRetries = 2
	c.DriverRetryBase = 500 * time.Millisecond
	c.ChargeAmount = decimal.Zero
	c.TaskLogCap = 500
	c.TaskResultsWindow = 50
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.S3Region = "us-east-1"
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database dsn: %w", common.ErrMissingConfig)
	}
	if c.StorageDriver != "sqlite" && c.StorageDriver != "postgres" {
		return fmt.Errorf("storage driver %q: %w", c.StorageDriver, common.ErrMissingConfig)
	}
	if c.MaxPollAttempts < 1 {
		return fmt.Errorf("max poll attempts must be positive: %w", common.ErrMissingConfig)
	}
	if budget := c.PollBudget(); c.SubmitTimeout > 0 && c.SubmitTimeout < budget {
		return fmt.Errorf("submit timeout %s is shorter than the poll budget %s: %w", c.SubmitTimeout, budget, common.ErrMissingConfig)
	}
	return nil
}

// PollBudget is the longest a single check token can be polled.
func (c *Config) PollBudget() time.Duration {
	return time.Duration(c.MaxPollAttempts) * (c.PollInterval + c.PollTimeout)
}

// HasVerifier reports whether the verification service may be called at all.
func (c *Config) HasVerifier() bool {
	return c.VerifierAPIKey != ""
}

// ReportsEnabled reports whether finished batches are uploaded to S3.
func (c *Config) ReportsEnabled() bool {
	return c.S3Bucket != ""
}

// LoadConfig applies every layer to the defaults using the process
// environment and os.Args.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:], os.LookupEnv)
}

// Load is LoadConfig with explicit inputs.
func Load(args []string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
