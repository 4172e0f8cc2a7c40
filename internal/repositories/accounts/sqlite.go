package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/dbx"
	"github.com/dmitrijs2005/gophenroll/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, acc *models.SealedAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (email, secrets, pool_owner, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET secrets = excluded.secrets, pool_owner = excluded.pool_owner
	`, acc.Email, acc.Secrets, acc.PoolOwner, dbx.Millis(acc.CreatedAt))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, email string) (*models.SealedAccount, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+`
		FROM accounts a LEFT JOIN progress p ON p.account_id = a.email
		WHERE a.email = ?`, email)

	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return acc, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.SealedAccount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+`
		FROM accounts a LEFT JOIN progress p ON p.account_id = a.email
		ORDER BY a.created_at, a.email`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.SealedAccount
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
