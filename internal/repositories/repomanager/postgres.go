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
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager is the shared backend for several server
// processes working on one instrument pool.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Driver() string { return "postgres" }

func (m *PostgresRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Instruments(db dbx.DBTX) instruments.Repository {
	return instruments.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Progress(db dbx.DBTX) progress.Repository {
	return progress.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Metadata(db dbx.DBTX) metadata.Repository {
	return metadata.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Postgres)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, "postgres")
}
