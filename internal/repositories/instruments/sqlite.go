package instruments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *SQLiteRepository) Create(ctx context.Context, inst *models.Instrument) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instruments (`+instrumentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, string(inst.PoolType), inst.Owner, inst.UseCount, inst.MaxUseCount, inst.SuccessCount,
		string(inst.Status), dbx.NullMillis(inst.ExpiresAt), dbx.Millis(inst.CreatedAt), inst.Last4, inst.SealedCard)
	if err != nil {
		return fmt.Errorf("create instrument: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Instrument, error) {
	inst, err := scanInstrument(r.db.QueryRowContext(ctx,
		`SELECT `+instrumentColumns+` FROM instruments WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("get instrument %s: %w", id, err)
	}
	return inst, nil
}

// GetForUpdate is Get: the single SQLite connection already serializes
// writers for the whole transaction.
func (r *SQLiteRepository) GetForUpdate(ctx context.Context, id string) (*models.Instrument, error) {
	return r.Get(ctx, id)
}

func (r *SQLiteRepository) List(ctx context.Context, pool *models.PoolKey) ([]models.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments`
	var args []any
	if pool != nil {
		query += ` WHERE pool_type = ? AND owner = ?`
		args = append(args, string(pool.Type), pool.Owner)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()
	return scanInstruments(rows)
}

func (r *SQLiteRepository) ExpireStale(ctx context.Context, pool models.PoolKey, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE instruments SET status = 'expired'
		WHERE pool_type = ? AND owner = ? AND status = 'available'
		  AND expires_at IS NOT NULL AND expires_at <= ?`,
		string(pool.Type), pool.Owner, dbx.Millis(now))
	if err != nil {
		return 0, fmt.Errorf("expire instruments: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) FindAvailable(ctx context.Context, pool models.PoolKey, now time.Time) (*models.Instrument, error) {
	inst, err := scanInstrument(r.db.QueryRowContext(ctx, `
		SELECT `+instrumentColumns+` FROM instruments
		WHERE pool_type = ? AND owner = ? AND status = 'available'
		  AND (max_use_count = 0 OR use_count < max_use_count)
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY use_count, created_at, id
		LIMIT 1`,
		string(pool.Type), pool.Owner, dbx.Millis(now)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("find instrument: %w", err)
	}
	return inst, nil
}

func (r *SQLiteRepository) UpdateState(ctx context.Context, inst *models.Instrument) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE instruments SET status = ?, use_count = ?, success_count = ?
		WHERE id = ?`,
		string(inst.Status), inst.UseCount, inst.SuccessCount, inst.ID)
	if err != nil {
		return fmt.Errorf("update instrument %s: %w", inst.ID, err)
	}
	return dbx.ExpectRows(res)
}

func (r *SQLiteRepository) AddUsage(ctx context.Context, rec *models.UsageRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instrument_usages (`+usageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.InstrumentID, rec.AccountID, rec.Success, amountArg(rec.Amount),
		dbx.NullString(rec.IdempotencyKey), dbx.Millis(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("add usage: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UsageByKey(ctx context.Context, key string) (*models.UsageRecord, error) {
	rec, err := scanUsage(r.db.QueryRowContext(ctx,
		`SELECT `+usageColumns+` FROM instrument_usages WHERE idempotency_key = ?`, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) Usages(ctx context.Context, instrumentID string) ([]models.UsageRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+usageColumns+` FROM instrument_usages WHERE instrument_id = ? ORDER BY created_at, id`, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("list usages: %w", err)
	}
	defer rows.Close()
	return scanUsages(rows)
}
