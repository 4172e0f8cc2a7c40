// Package accounts persists sealed account records. Reads join the
// account's last progress row so callers see one record per account.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/gophenroll/internal/models"
)

type Repository interface {
	// Upsert inserts the account or replaces its secrets and pool owner.
	// CreatedAt is kept from the first insert.
	Upsert(ctx context.Context, acc *models.SealedAccount) error
	// Get returns common.ErrorNotFound for an unknown email.
	Get(ctx context.Context, email string) (*models.SealedAccount, error)
	// List returns every account ordered by creation time.
	List(ctx context.Context) ([]models.SealedAccount, error)
}
