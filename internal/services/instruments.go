package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/dbx"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/repomanager"
	"github.com/google/uuid"
)

type InstrumentService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	sealer Sealer
	log    logging.Logger
	now    func() time.Time
}

func NewInstrumentService(db *sql.DB, repos repomanager.RepositoryManager, sealer Sealer, log logging.Logger) *InstrumentService {
	return &InstrumentService{db: db, repos: repos, sealer: sealer, log: log, now: time.Now}
}

type ImportOptions struct {
	// Owner puts the cards in that owner's private pool; empty is public.
	Owner       string
	MaxUseCount int
}

// Import seals cards and adds them as available instruments in one
// transaction. Each instrument expires when its card does.
func (s *InstrumentService) Import(ctx context.Context, cards []models.Card, opts ImportOptions) ([]*models.Instrument, error) {
	if opts.MaxUseCount < 0 {
		return nil, fmt.Errorf("max use count %d is negative", opts.MaxUseCount)
	}
	pool := models.PoolFor(opts.Owner)
	now := s.now().UTC()

	created := make([]*models.Instrument, 0, len(cards))
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Instruments(tx)
		for i := range cards {
			sealed, err := s.sealer.Seal(cards[i])
			if err != nil {
				return fmt.Errorf("seal card *%s: %w", cards[i].Last4(), err)
			}
			expires := CardExpiry(cards[i])
			inst := &models.Instrument{
				ID:          uuid.NewString(),
				PoolType:    pool.Type,
				Owner:       pool.Owner,
				MaxUseCount: opts.MaxUseCount,
				Status:      models.InstrumentAvailable,
				ExpiresAt:   &expires,
				CreatedAt:   now.Add(time.Duration(i) * time.Millisecond),
				Last4:       cards[i].Last4(),
				SealedCard:  sealed,
			}
			if err := repo.Create(ctx, inst); err != nil {
				return fmt.Errorf("save card *%s: %w", inst.Last4, err)
			}
			created = append(created, inst)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import cards: %w", err)
	}
	s.log.Info(ctx, "cards imported", "count", len(created), "pool", pool.String())
	return created, nil
}

func (s *InstrumentService) List(ctx context.Context, pool *models.PoolKey) ([]models.Instrument, error) {
	return s.repos.Instruments(s.db).List(ctx, pool)
}

// CardExpiry is the first instant after the card's expiry month, in UTC.
func CardExpiry(c models.Card) time.Time {
	return time.Date(c.ExpYear, time.Month(c.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
}
