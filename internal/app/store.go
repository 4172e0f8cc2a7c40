package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/config"
	"github.com/dmitrijs2005/gophenroll/internal/cryptox"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/repomanager"
	"github.com/dmitrijs2005/gophenroll/internal/services"
	"golang.org/x/term"
)

// readPassword and isTerminal are test seams for the x/term calls.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// MasterPassword returns the configured master password or, on an
// interactive terminal, prompts for it on w without echo.
func MasterPassword(cfg *config.Config, w io.Writer) ([]byte, error) {
	if cfg.MasterPassword != "" {
		return []byte(cfg.MasterPassword), nil
	}
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return nil, fmt.Errorf("master password: %w", common.ErrMissingConfig)
	}
	if _, err := fmt.Fprint(w, "Master password: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// Store is an unlocked database with the services built on it.
type Store struct {
	DB          *sql.DB
	Repos       repomanager.RepositoryManager
	Sealer      *cryptox.Sealer
	Accounts    *services.AccountService
	Instruments *services.InstrumentService
}

// OpenStore connects to the configured database, runs migrations and
// unlocks the secret store with password.
func OpenStore(ctx context.Context, cfg *config.Config, password []byte, l logging.Logger) (*Store, error) {
	db, repos, err := repomanager.Open(ctx, cfg.StorageDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	sealer, err := services.Unlock(ctx, db, repos, password)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unlock: %w", err)
	}

	return &Store{
		DB:          db,
		Repos:       repos,
		Sealer:      sealer,
		Accounts:    services.NewAccountService(db, repos, sealer, l.With("module", "accounts")),
		Instruments: services.NewInstrumentService(db, repos, sealer, l.With("module", "instruments")),
	}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}
