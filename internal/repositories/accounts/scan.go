package accounts

import (
	"database/sql"

	"github.com/dmitrijs2005/gophenroll/internal/dbx"
	"github.com/dmitrijs2005/gophenroll/internal/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const selectColumns = `a.email, a.secrets, a.pool_owner, a.created_at,
		p.status, p.message, p.enhanced, p.verification_link, p.instrument_id, p.updated_at`

func scanAccount(row rowScanner) (*models.SealedAccount, error) {
	var (
		acc       models.SealedAccount
		createdAt int64
		status    sql.NullString
		message   sql.NullString
		enhanced  sql.NullBool
		link      sql.NullString
		instID    sql.NullString
		updatedAt sql.NullInt64
	)
	if err := row.Scan(&acc.Email, &acc.Secrets, &acc.PoolOwner, &createdAt,
		&status, &message, &enhanced, &link, &instID, &updatedAt); err != nil {
		return nil, err
	}
	acc.CreatedAt = dbx.FromMillis(createdAt)

	if status.Valid {
		acc.Progress = &models.Progress{
			AccountID:        acc.Email,
			Status:           models.Status(status.String),
			Message:          message.String,
			Enhanced:         enhanced.Bool,
			VerificationLink: link.String,
			InstrumentID:     instID.String,
			UpdatedAt:        dbx.FromMillis(updatedAt.Int64),
		}
	}
	return &acc, nil
}
