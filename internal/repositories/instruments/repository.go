// Package instruments stores payment instruments and their usage log.
//
// Methods that change an instrument are meant to run inside one
// transaction driven by the pool package; the repository itself holds no
// locks.
package instruments

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/models"
)

type Repository interface {
	Create(ctx context.Context, inst *models.Instrument) error
	// Get returns common.ErrorNotFound for an unknown id.
	Get(ctx context.Context, id string) (*models.Instrument, error)
	// GetForUpdate is Get that also locks the row until the transaction ends
	// on backends that support row locks.
	GetForUpdate(ctx context.Context, id string) (*models.Instrument, error)
	// List returns the instruments of pool, or of every pool when pool is nil.
	List(ctx context.Context, pool *models.PoolKey) ([]models.Instrument, error)

	// ExpireStale marks available instruments of pool whose expiry is at or
	// before now as expired and returns how many were changed.
	ExpireStale(ctx context.Context, pool models.PoolKey, now time.Time) (int64, error)
	// FindAvailable returns the best allocatable instrument of pool: lowest
	// use count, then oldest, then lowest id. common.ErrorNotFound when none.
	FindAvailable(ctx context.Context, pool models.PoolKey, now time.Time) (*models.Instrument, error)
	// UpdateState writes status and counters for inst.ID.
	UpdateState(ctx context.Context, inst *models.Instrument) error

	AddUsage(ctx context.Context, rec *models.UsageRecord) error
	// UsageByKey returns common.ErrorNotFound for an unknown key.
	UsageByKey(ctx context.Context, key string) (*models.UsageRecord, error)
	Usages(ctx context.Context, instrumentID string) ([]models.UsageRecord, error)
}
