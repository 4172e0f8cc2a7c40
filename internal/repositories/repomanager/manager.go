// Package repomanager vends backend-specific repositories and runs the
// embedded goose migrations for the chosen storage driver.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophenroll/internal/dbx"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/accounts"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/instruments"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/metadata"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/progress"
	"github.com/pressly/goose/v3"
)

// RepositoryManager builds repositories bound to a DBTX, so the same code
// path works against *sql.DB and inside dbx.WithTx.
type RepositoryManager interface {
	Driver() string
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Instruments(db dbx.DBTX) instruments.Repository
	Progress(db dbx.DBTX) progress.Repository
	Metadata(db dbx.DBTX) metadata.Repository
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// New returns the manager for driver ("sqlite" or "postgres").
func New(driver string) (RepositoryManager, error) {
	switch driver {
	case "sqlite":
		return &SQLiteRepositoryManager{}, nil
	case "postgres":
		return &PostgresRepositoryManager{}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

// Open connects to the database, applies the driver's connection settings,
// runs migrations and returns the handle with its manager.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, RepositoryManager, error) {
	m, err := New(driver)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(sqlDriverName(driver), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// one writer at a time; transactions must use only their own handle
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("sqlite pragmas: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return db, m, nil
}

func sqlDriverName(driver string) string {
	if driver == "postgres" {
		return "pgx"
	}
	return "sqlite"
}
