package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const envPrefix = "GOPHENROLL_"

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// parseEnv overlays GOPHENROLL_* variables onto config.
func parseEnv(config *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = d
		return nil
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("LISTEN_ADDR", &config.ListenAddr)
	str("STORAGE_DRIVER", &config.StorageDriver)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("MASTER_PASSWORD", &config.MasterPassword)
	str("VERIFIER_URL", &config.VerifierURL)
	str("VERIFIER_API_KEY", &config.VerifierAPIKey)
	str("DRIVER_URL", &config.DriverURL)
	str("LOG_LEVEL", &config.LogLevel)
	str("LOG_FORMAT", &config.LogFormat)
	str("S3_ACCESS_KEY", &config.S3AccessKey)
	str("S3_SECRET_KEY", &config.S3SecretKey)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)

	for _, e := range []error{
		num("CONCURRENCY", &config.Concurrency),
		num("MAX_POLL_ATTEMPTS", &config.MaxPollAttempts),
		num("TASK_LOG_CAP", &config.TaskLogCap),
		num("TASK_RESULTS_WINDOW", &config.TaskResultsWindow),
		dur("DRIVER_TIMEOUT", &config.DriverTimeout),
		dur("LOGIN_TIMEOUT", &config.LoginTimeout),
		dur("PAYMENT_TIMEOUT", &config.PaymentTimeout),
		dur("SUBMIT_TIMEOUT", &config.SubmitTimeout),
		dur("POLL_INTERVAL", &config.PollInterval),
		dur("POLL_TIMEOUT", &config.PollTimeout),
		dur("DRIVER_RETRY_BASE", &config.DriverRetryBase),
	} {
		if e != nil {
			return e
		}
	}

	if v, ok := lookup(envPrefix + "DRIVER_MAX_RETRIES"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sDRIVER_MAX_RETRIES: %w", envPrefix, err)
		}
		config.DriverMaxRetries = n
	}
	if v, ok := lookup(envPrefix + "CHARGE_AMOUNT"); ok {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("%sCHARGE_AMOUNT: %w", envPrefix, err)
		}
		config.ChargeAmount = amount
	}
	return nil
}
