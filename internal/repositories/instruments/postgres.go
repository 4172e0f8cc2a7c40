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

// PostgresRepository relies on row locks so that several server processes
// can share one pool: FindAvailable skips rows locked by other
// transactions, and GetForUpdate locks the row it returns.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, inst *models.Instrument) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instruments (`+instrumentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inst.ID, string(inst.PoolType), inst.Owner, inst.UseCount, inst.MaxUseCount, inst.SuccessCount,
		string(inst.Status), dbx.NullMillis(inst.ExpiresAt), dbx.Millis(inst.CreatedAt), inst.Last4, inst.SealedCard)
	if err != nil {
		return fmt.Errorf("create instrument: %w", err)
	}
	return nil
}

func (r *PostgresRepository) get(ctx context.Context, id, suffix string) (*models.Instrument, error) {
	inst, err := scanInstrument(r.db.QueryRowContext(ctx,
		`SELECT `+instrumentColumns+` FROM instruments WHERE id = $1`+suffix, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("get instrument %s: %w", id, err)
	}
	return inst, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Instrument, error) {
	return r.get(ctx, id, "")
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Instrument, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *PostgresRepository) List(ctx context.Context, pool *models.PoolKey) ([]models.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments`
	var args []any
	if pool != nil {
		query += ` WHERE pool_type = $1 AND owner = $2`
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

func (r *PostgresRepository) ExpireStale(ctx context.Context, pool models.PoolKey, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE instruments SET status = 'expired'
		WHERE pool_type = $1 AND owner = $2 AND status = 'available'
		  AND expires_at IS NOT NULL AND expires_at <= $3`,
		string(pool.Type), pool.Owner, dbx.Millis(now))
	if err != nil {
		return 0, fmt.Errorf("expire instruments: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) FindAvailable(ctx context.Context, pool models.PoolKey, now time.Time) (*models.Instrument, error) {
	inst, err := scanInstrument(r.db.QueryRowContext(ctx, `
		SELECT `+instrumentColumns+` FROM instruments
		WHERE pool_type = $1 AND owner = $2 AND status = 'available'
		  AND (max_use_count = 0 OR use_count < max_use_count)
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY use_count, created_at, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		string(pool.Type), pool.Owner, dbx.Millis(now)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("find instrument: %w", err)
	}
	return inst, nil
}

func (r *PostgresRepository) UpdateState(ctx context.Context, inst *models.Instrument) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE instruments SET status = $1, use_count = $2, success_count = $3
		WHERE id = $4`,
		string(inst.Status), inst.UseCount, inst.SuccessCount, inst.ID)
	if err != nil {
		return fmt.Errorf("update instrument %s: %w", inst.ID, err)
	}
	return dbx.ExpectRows(res)
}

func (r *PostgresRepository) AddUsage(ctx context.Context, rec *models.UsageRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instrument_usages (`+usageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.InstrumentID, rec.AccountID, rec.Success, amountArg(rec.Amount),
		dbx.NullString(rec.IdempotencyKey), dbx.Millis(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("add usage: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UsageByKey(ctx context.Context, key string) (*models.UsageRecord, error) {
	rec, err := scanUsage(r.db.QueryRowContext(ctx,
		`SELECT `+usageColumns+` FROM instrument_usages WHERE idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Usages(ctx context.Context, instrumentID string) ([]models.UsageRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+usageColumns+` FROM instrument_usages WHERE instrument_id = $1 ORDER BY created_at, id`, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("list usages: %w", err)
	}
	defer rows.Close()
	return scanUsages(rows)
}
