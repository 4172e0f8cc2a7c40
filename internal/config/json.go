package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophenroll/internal/flagx"
	"github.com/dmitrijs2005/gophenroll/internal/timex"
	"github.com/shopspring/decimal"
)

// JsonConfig is the on-disk shape of the -c/-config file. Durations accept
// "3s" strings or integer nanoseconds. Zero values leave the current
// setting untouched.
type JsonConfig struct {
	ListenAddr        string              `json:"listen_addr"`
	StorageDriver     string              `json:"storage_driver"`
	DatabaseDSN       string              `json:"database_dsn"`
	MasterPassword    string              `json:"master_password"`
	VerifierURL       string              `json:"verifier_url"`
	VerifierAPIKey    string              `json:"verifier_api_key"`
	DriverURL         string              `json:"driver_url"`
	Concurrency       int                 `json:"concurrency"`
	DriverTimeout     timex.Duration      `json:"driver_timeout"`
	LoginTimeout      timex.Duration      `json:"login_timeout"`
	PaymentTimeout    timex.Duration      `json:"payment_timeout"`
	SubmitTimeout     timex.Duration      `json:"submit_timeout"`
	PollInterval      timex.Duration      `json:"poll_interval"`
	PollTimeout       timex.Duration      `json:"poll_timeout"`
	MaxPollAttempts   int                 `json:"max_poll_attempts"`
	DriverMaxRetries  *uint64             `json:"driver_max_retries"`
	DriverRetryBase   timex.Duration      `json:"driver_retry_base"`
	ChargeAmount      decimal.NullDecimal `json:"charge_amount"`
	TaskLogCap        int                 `json:"task_log_cap"`
	TaskResultsWindow int                 `json:"task_results_window"`
	LogLevel          string              `json:"log_level"`
	LogFormat         string              `json:"log_format"`
	S3AccessKey       string              `json:"s3_access_key"`
	S3SecretKey       string              `json:"s3_secret_key"`
	S3Bucket          string              `json:"s3_bucket"`
	S3Region          string              `json:"s3_region"`
	S3BaseEndpoint    string              `json:"s3_base_endpoint"`
}

// parseJson overlays the file named by -c/-config in args, if any.
func parseJson(config *Config, args []string) error {
	path := flagx.JsonConfigFlags(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setStr(&config.ListenAddr, c.ListenAddr)
	setStr(&config.StorageDriver, c.StorageDriver)
	setStr(&config.DatabaseDSN, c.DatabaseDSN)
	setStr(&config.MasterPassword, c.MasterPassword)
	setStr(&config.VerifierURL, c.VerifierURL)
	setStr(&config.VerifierAPIKey, c.VerifierAPIKey)
	setStr(&config.DriverURL, c.DriverURL)
	setStr(&config.LogLevel, c.LogLevel)
	setStr(&config.LogFormat, c.LogFormat)
	setStr(&config.S3AccessKey, c.S3AccessKey)
	setStr(&config.S3SecretKey, c.S3SecretKey)
	setStr(&config.S3Bucket, c.S3Bucket)
	setStr(&config.S3Region, c.S3Region)
	setStr(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	setInt(&config.Concurrency, c.Concurrency)
	setInt(&config.MaxPollAttempts, c.MaxPollAttempts)
	setInt(&config.TaskLogCap, c.TaskLogCap)
	setInt(&config.TaskResultsWindow, c.TaskResultsWindow)

	if c.DriverTimeout.Duration > 0 {
		config.DriverTimeout = c.DriverTimeout.Duration
	}
	if c.LoginTimeout.Duration > 0 {
		config.LoginTimeout = c.LoginTimeout.Duration
	}
	if c.PaymentTimeout.Duration > 0 {
		config.PaymentTimeout = c.PaymentTimeout.Duration
	}
	if c.SubmitTimeout.Duration > 0 {
		config.SubmitTimeout = c.SubmitTimeout.Duration
	}
	if c.PollInterval.Duration > 0 {
		config.PollInterval = c.PollInterval.Duration
	}
	if c.PollTimeout.Duration > 0 {
		config.PollTimeout = c.PollTimeout.Duration
	}
	if c.DriverRetryBase.Duration > 0 {
		config.DriverRetryBase = c.DriverRetryBase.Duration
	}
	if c.DriverMaxRetries != nil {
		config.DriverMaxRetries = *c.DriverMaxRetries
	}
	if c.ChargeAmount.Valid {
		config.ChargeAmount = c.ChargeAmount.Decimal
	}
	return nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
