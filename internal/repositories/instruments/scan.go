package instruments

import (
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophenroll/internal/dbx"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/shopspring/decimal"
)

const instrumentColumns = `id, pool_type, owner, use_count, max_use_count, success_count,
		status, expires_at, created_at, last4, card`

const usageColumns = `id, instrument_id, account_id, success, amount, idempotency_key, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstrument(row rowScanner) (*models.Instrument, error) {
	var (
		inst      models.Instrument
		poolType  string
		status    string
		expiresAt sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&inst.ID, &poolType, &inst.Owner, &inst.UseCount, &inst.MaxUseCount, &inst.SuccessCount,
		&status, &expiresAt, &createdAt, &inst.Last4, &inst.SealedCard); err != nil {
		return nil, err
	}
	inst.PoolType = models.PoolType(poolType)
	inst.Status = models.InstrumentStatus(status)
	inst.ExpiresAt = dbx.TimePtr(expiresAt)
	inst.CreatedAt = dbx.FromMillis(createdAt)
	return &inst, nil
}

func scanInstruments(rows *sql.Rows) ([]models.Instrument, error) {
	var result []models.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		result = append(result, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instruments: %w", err)
	}
	return result, nil
}

func scanUsage(row rowScanner) (*models.UsageRecord, error) {
	var (
		rec       models.UsageRecord
		amount    decimal.NullDecimal
		key       sql.NullString
		createdAt int64
	)
	if err := row.Scan(&rec.ID, &rec.InstrumentID, &rec.AccountID, &rec.Success, &amount, &key, &createdAt); err != nil {
		return nil, err
	}
	rec.Amount = amount
	rec.IdempotencyKey = key.String
	rec.CreatedAt = dbx.FromMillis(createdAt)
	return &rec, nil
}

func scanUsages(rows *sql.Rows) ([]models.UsageRecord, error) {
	var result []models.UsageRecord
	for rows.Next() {
		rec, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usages: %w", err)
	}
	return result, nil
}

func amountArg(a decimal.NullDecimal) any {
	if !a.Valid {
		return nil
	}
	return a.Decimal.String()
}
