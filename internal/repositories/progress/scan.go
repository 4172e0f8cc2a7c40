package progress

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophenroll/internal/dbx"
	"github.com/dmitrijs2005/gophenroll/internal/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgress(row rowScanner) (*models.Progress, error) {
	var (
		p         models.Progress
		status    string
		link      sql.NullString
		instID    sql.NullString
		updatedAt int64
	)
	if err := row.Scan(&p.AccountID, &status, &p.Message, &p.Enhanced, &link, &instID, &updatedAt); err != nil {
		return nil, err
	}
	p.Status = models.Status(status)
	p.VerificationLink = link.String
	p.InstrumentID = instID.String
	p.UpdatedAt = dbx.FromMillis(updatedAt)
	return &p, nil
}

func subscribedSet(ctx context.Context, db dbx.DBTX, query string) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, query, string(models.StatusSubscribed))
	if err != nil {
		return nil, fmt.Errorf("query subscribed: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscribed: %w", err)
		}
		set[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribed: %w", err)
	}
	return set, nil
}

func listProgress(ctx context.Context, db dbx.DBTX) ([]models.Progress, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT account_id, status, message, enhanced, verification_link, instrument_id, updated_at
		FROM progress ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var result []models.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return result, nil
}
