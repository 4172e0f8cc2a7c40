package config

import (
	"flag"
	"fmt"

	"github.com/dmitrijs2005/gophenroll/internal/flagx"
)

// parseFlags overlays short command-line flags onto config.
//
//	-a string   gRPC control address
//	-k string   storage driver (sqlite | postgres)
//	-d string   database DSN
//	-m string   master password for sealing secrets
//	-v string   verification service URL
//	-x string   verification service API key
//	-w string   browser-control service URL
//	-n int      batch concurrency
//	-l string   log level
//	-b string   S3 bucket for batch reports
//
// Only these flags are consumed; other arguments are left to their owners.
func parseFlags(config *Config, args []string) error {
	filtered := flagx.FilterArgs(args, []string{"-a", "-k", "-d", "-m", "-v", "-x", "-w", "-n", "-l", "-b"})

	fs := flag.NewFlagSet("gophenroll", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "gRPC control address")
	fs.StringVar(&config.StorageDriver, "k", config.StorageDriver, "storage driver (sqlite|postgres)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.MasterPassword, "m", config.MasterPassword, "master password")
	fs.StringVar(&config.VerifierURL, "v", config.VerifierURL, "verification service URL")
	fs.StringVar(&config.VerifierAPIKey, "x", config.VerifierAPIKey, "verification service API key")
	fs.StringVar(&config.DriverURL, "w", config.DriverURL, "browser-control service URL")
	fs.IntVar(&config.Concurrency, "n", config.Concurrency, "batch concurrency")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket for batch reports")

	if err := fs.Parse(filtered); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
