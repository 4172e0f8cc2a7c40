// Package app wires configuration, storage, the verification client, the
// session driver, the orchestrator and the batch runner behind the gRPC
// control server, and runs them until a shutdown signal.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/batch"
	"github.com/dmitrijs2005/gophenroll/internal/config"
	"github.com/dmitrijs2005/gophenroll/internal/control"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/orchestrator"
	"github.com/dmitrijs2005/gophenroll/internal/pool"
	"github.com/dmitrijs2005/gophenroll/internal/reports"
	"github.com/dmitrijs2005/gophenroll/internal/session"
	"github.com/dmitrijs2005/gophenroll/internal/verification"
)

// shutdownTimeout bounds how long in-flight accounts may take to finish
// after a shutdown signal.
const shutdownTimeout = 2 * time.Minute

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   *Store
	runner  *batch.Runner
	control *control.Server
}

// NewApp builds the whole server on top of an unlocked store.
func NewApp(ctx context.Context, cfg *config.Config, password []byte, logger logging.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg, password, logger)
	if err != nil {
		return nil, err
	}

	quota := verification.NewMetadataQuotaStore(store.Repos.Metadata(store.DB))
	verifier := verification.NewClient(verification.Config{
		BaseURL:         cfg.VerifierURL,
		APIKey:          cfg.VerifierAPIKey,
		PollInterval:    cfg.PollInterval,
		PollTimeout:     cfg.PollTimeout,
		MaxPollAttempts: cfg.MaxPollAttempts,
	}, &http.Client{}, quota, logger.With("module", "verification"))

	driver := session.NewRetryingDriver(
		session.NewHTTPDriver(cfg.DriverURL, &http.Client{}),
		cfg.DriverMaxRetries, cfg.DriverRetryBase, logger.With("module", "session"),
	)

	progress := store.Repos.Progress(store.DB)
	instruments := pool.New(store.DB, store.Repos, store.Sealer, logger.With("module", "pool"))

	orch := orchestrator.New(driver, verifier, instruments, progress, orchestrator.Config{
		HasAPIKey:      cfg.HasVerifier(),
		DriverTimeout:  cfg.DriverTimeout,
		LoginTimeout:   cfg.LoginTimeout,
		PaymentTimeout: cfg.PaymentTimeout,
		SubmitTimeout:  cfg.SubmitTimeout,
		ChargeAmount:   cfg.ChargeAmount,
	}, logger.With("module", "orchestrator"))

	opts := batch.Options{LogCap: cfg.TaskLogCap, ResultsWindow: cfg.TaskResultsWindow}
	if cfg.ReportsEnabled() {
		opts.Reporter = reports.NewS3Reporter(reports.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			BaseEndpoint: cfg.S3BaseEndpoint,
		}, logger.With("module", "reports"))
	}
	runner := batch.NewRunner(orch, store.Accounts, progress, opts, logger.With("module", "batch"))

	qs := control.QuotaSource{Stored: quota.LoadQuota}
	if cfg.HasVerifier() {
		qs.Live = verifier.Status
	}
	srv := control.NewServer(cfg.ListenAddr, runner, store.Accounts, qs, cfg.Concurrency, logger)

	return &App{
		config:  cfg,
		logger:  logger,
		store:   store,
		runner:  runner,
		control: srv,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves the control API until ctx is done or a shutdown signal
// arrives, then stops running batches and waits for their in-flight
// accounts.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	runErr := app.control.Run(ctx)
	if runErr != nil {
		app.logger.Error(ctx, "control server failed", "error", runErr)
	}

	app.runner.StopAll()
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := app.runner.WaitAll(waitCtx); err != nil {
		app.logger.Warn(ctx, "batches still running at shutdown", "error", err)
	}

	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "close db", "error", err)
	}
	app.logger.Info(ctx, "app stopped")

	if runErr != nil {
		return fmt.Errorf("control server: %w", runErr)
	}
	return nil
}
