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

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, p *models.Progress) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO progress (account_id, status, message, enhanced, verification_link, instrument_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			enhanced = excluded.enhanced,
			verification_link = excluded.verification_link,
			instrument_id = excluded.instrument_id,
			updated_at = excluded.updated_at
	`, p.AccountID, string(p.Status), p.Message, p.Enhanced,
		dbx.NullString(p.VerificationLink), dbx.NullString(p.InstrumentID), dbx.Millis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save progress[%s]: %w", p.AccountID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, accountID string) (*models.Progress, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT account_id, status, message, enhanced, verification_link, instrument_id, updated_at
		FROM progress WHERE account_id = ?`, accountID)

	p, err := scanProgress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("get progress[%s]: %w", accountID, err)
	}
	return p, nil
}

func (r *SQLiteRepository) Pending(ctx context.Context, ids []string) ([]string, error) {
	subscribed, err := subscribedSet(ctx, r.db, `SELECT account_id FROM progress WHERE status = ?`)
	if err != nil {
		return nil, err
	}
	return filterPending(ids, subscribed), nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Progress, error) {
	return listProgress(ctx, r.db)
}
