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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, acc *models.SealedAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (email, secrets, pool_owner, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET secrets = EXCLUDED.secrets, pool_owner = EXCLUDED.pool_owner
	`, acc.Email, acc.Secrets, acc.PoolOwner, dbx.Millis(acc.CreatedAt))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, email string) (*models.SealedAccount, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+`
		FROM accounts a LEFT JOIN progress p ON p.account_id = a.email
		WHERE a.email = $1`, email)

	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return acc, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.SealedAccount, error) {
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
