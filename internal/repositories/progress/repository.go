// Package progress is the per-account progress store. Every write is a
// single-row upsert keyed by account id, so concurrent workers never
// overwrite each other's accounts.
package progress

import (
	"context"

	"github.com/dmitrijs2005/gophenroll/internal/models"
)

type Repository interface {
	// Save records the latest outcome for p.AccountID.
	Save(ctx context.Context, p *models.Progress) error
	// Get returns common.ErrorNotFound when the account was never recorded.
	Get(ctx context.Context, accountID string) (*models.Progress, error)
	// Pending returns the ids, in input order, whose last recorded status is
	// not SUBSCRIBED. Ids with no record are pending.
	Pending(ctx context.Context, ids []string) ([]string, error)
	List(ctx context.Context) ([]models.Progress, error)
}

func filterPending(ids []string, subscribed map[string]struct{}) []string {
	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, done := subscribed[id]; !done {
			pending = append(pending, id)
		}
	}
	return pending
}
