package progress

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

func (r *PostgresRepository) Save(ctx context.Context, p *models.Progress) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO progress (account_id, status, message, enhanced, verification_link, instrument_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			status = EXCLUDED.status,
			message = EXCLUDED.message,
			enhanced = EXCLUDED.enhanced,
			verification_link = EXCLUDED.verification_link,
			instrument_id = EXCLUDED.instrument_id,
			updated_at = EXCLUDED.updated_at
	`, p.AccountID, string(p.Status), p.Message, p.Enhanced,
		dbx.NullString(p.VerificationLink), dbx.NullString(p.InstrumentID), dbx.Millis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save progress[%s]: %w", p.AccountID, err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID string) (*models.Progress, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT account_id, status, message, enhanced, verification_link, instrument_id, updated_at
		FROM progress WHERE account_id = $1`, accountID)

	p, err := scanProgress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("get progress[%s]: %w", accountID, err)
	}
	return p, nil
}

func (r *PostgresRepository) Pending(ctx context.Context, ids []string) ([]string, error) {
	subscribed, err := subscribedSet(ctx, r.db, `SELECT account_id FROM progress WHERE status = $1`)
	if err != nil {
		return nil, err
	}
	return filterPending(ids, subscribed), nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.Progress, error) {
	return listProgress(ctx, r.db)
}
