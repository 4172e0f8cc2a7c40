package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophenroll/internal/dbx"
	"github.com/dmitrijs2005/gophenroll/internal/migrations"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/accounts"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/instruments"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/metadata"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/progress"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// SQLiteRepositoryManager is the local single-process backend.
type SQLiteRepositoryManager struct{}

func (m *SQLiteRepositoryManager) Driver() string { return "sqlite" }

func (m *SQLiteRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Instruments(db dbx.DBTX) instruments.Repository {
	return instruments.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Progress(db dbx.DBTX) progress.Repository {
	return progress.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Metadata(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.SQLite)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, "sqlite")
}
