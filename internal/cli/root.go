// Package cli implements the gophenroll operator CLI. Batch commands talk
// to a running server over the control API; import commands open the
// database directly.
package cli

import (
	"context"
	"os"

	"github.com/dmitrijs2005/gophenroll/internal/batch"
	"github.com/dmitrijs2005/gophenroll/internal/config"
	"github.com/dmitrijs2005/gophenroll/internal/control"
	"github.com/spf13/cobra"
)

// ControlClient is the part of *control.Client the CLI uses.
type ControlClient interface {
	StartBatch(ctx context.Context, req control.StartRequest) (string, error)
	ResumeBatch(ctx context.Context, req control.StartRequest) (string, error)
	StopBatch(ctx context.Context, taskID string) error
	ForgetBatch(ctx context.Context, taskID string) error
	BatchStatus(ctx context.Context, taskID string) (batch.Snapshot, error)
	Quota(ctx context.Context) (control.QuotaReport, error)
	Close() error
}

// dial is a test seam for control.Dial.
var dial = func(addr string) (ControlClient, error) {
	return control.Dial(addr)
}

type globalFlags struct {
	configPath string
	addr       string
	dsn        string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "gophenroll",
		Short:         "Operate gophenroll enrollment batches",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "JSON config file")
	root.PersistentFlags().StringVarP(&g.addr, "addr", "a", "", "control server address (overrides config)")
	root.PersistentFlags().StringVar(&g.dsn, "dsn", "", "database DSN for import commands (overrides config)")

	root.AddCommand(
		StartCmd(g),
		ResumeCmd(g),
		StopCmd(g),
		StatusCmd(g),
		ForgetCmd(g),
		QuotaCmd(g),
		ImportAccountsCmd(g),
		ImportCardsCmd(g),
		AccountsCmd(g),
		InstrumentsCmd(g),
	)
	return root
}

// load resolves the layered config; only -c is taken from the command
// line, the remaining layers come from .env and GOPHENROLL_* variables.
func (g *globalFlags) load() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	var args []string
	if g.configPath != "" {
		args = []string{"-c", g.configPath}
	}
	cfg, err := config.Load(args, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if g.addr != "" {
		cfg.ListenAddr = g.addr
	}
	if g.dsn != "" {
		cfg.DatabaseDSN = g.dsn
	}
	return cfg, nil
}

func (g *globalFlags) client() (ControlClient, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	return dial(cfg.ListenAddr)
}
