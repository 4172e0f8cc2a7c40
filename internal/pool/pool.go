// Package pool hands out capacity-limited payment instruments.
//
// Every operation runs as one transaction under a per-pool mutex, so within
// a process two callers never receive the same locked instrument. On
// Postgres the row locks taken by the instruments repository extend that
// guarantee across processes.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/dbx"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/instruments"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repositories builds an instruments repository bound to a DB handle or a
// transaction. repomanager.RepositoryManager satisfies it.
type Repositories interface {
	Instruments(db dbx.DBTX) instruments.Repository
}

// Opener decrypts sealed card data. *cryptox.Sealer satisfies it.
type Opener interface {
	Open(blob []byte, v any) error
}

type AllocateRequest struct {
	PoolType models.PoolType
	Owner    string
	// Lock marks the instrument in_use until Use or Release.
	Lock bool
}

func (r AllocateRequest) key() models.PoolKey {
	if r.PoolType == "" {
		return models.PoolFor(r.Owner)
	}
	if r.PoolType == models.PoolPublic {
		return models.PoolKey{Type: models.PoolPublic}
	}
	return models.PoolKey{Type: r.PoolType, Owner: r.Owner}
}

type UseOptions struct {
	Amount decimal.NullDecimal
	// IdempotencyKey makes a repeated Use return the first record unchanged.
	IdempotencyKey string
	AccountID      string
}

type Pool struct {
	db     *sql.DB
	repos  Repositories
	opener Opener
	log    logging.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db *sql.DB, repos Repositories, opener Opener, log logging.Logger) *Pool {
	return &Pool{
		db:     db,
		repos:  repos,
		opener: opener,
		log:    log,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (p *Pool) lock(key models.PoolKey) func() {
	p.mu.Lock()
	m, ok := p.locks[key.String()]
	if !ok {
		m = &sync.Mutex{}
		p.locks[key.String()] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Allocate picks the eligible instrument with the lowest use count (then
// oldest, then lowest id) and decrypts its card. Expired instruments of the
// pool are swept in the same transaction. It returns
// common.ErrResourceExhausted when nothing is eligible.
func (p *Pool) Allocate(ctx context.Context, req AllocateRequest) (*models.Instrument, error) {
	key := req.key()
	unlock := p.lock(key)
	defer unlock()

	var inst *models.Instrument
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := p.repos.Instruments(tx)
		now := p.now()

		expired, err := repo.ExpireStale(ctx, key, now)
		if err != nil {
			return err
		}
		if expired > 0 {
			p.log.Info(ctx, "expired instruments swept", "pool", key.String(), "count", expired)
		}

		found, err := repo.FindAvailable(ctx, key, now)
		if errors.Is(err, common.ErrorNotFound) {
			// commit the sweep; exhaustion is reported after the transaction
			return nil
		}
		if err != nil {
			return err
		}
		if !found.Allocatable(now) {
			return fmt.Errorf("instrument %s is %s: %w", found.ID, found.Status, common.ErrInstrumentUnavailable)
		}

		card := &models.Card{}
		if err := p.opener.Open(found.SealedCard, card); err != nil {
			return fmt.Errorf("instrument %s: %w", found.ID, err)
		}
		found.Card = card

		if req.Lock {
			found.Status = models.InstrumentInUse
			if err := repo.UpdateState(ctx, found); err != nil {
				return err
			}
		}
		inst = found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("allocate from %s pool: %w", key, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("allocate from %s pool: %w", key, common.ErrResourceExhausted)
	}

	p.log.Debug(ctx, "instrument allocated", "pool", key.String(), "instrument", inst.ID, "use_count", inst.UseCount, "locked", req.Lock)
	return inst, nil
}

// Use records one usage of inst. UseCount is incremented, SuccessCount too
// when success is true, and the status becomes used once the cap is hit,
// available otherwise. inst is updated in place.
func (p *Pool) Use(ctx context.Context, inst *models.Instrument, success bool, opts UseOptions) (*models.UsageRecord, error) {
	unlock := p.lock(inst.Pool())
	defer unlock()

	var (
		rec *models.UsageRecord
		cur *models.Instrument
	)
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := p.repos.Instruments(tx)

		if opts.IdempotencyKey != "" {
			prev, err := repo.UsageByKey(ctx, opts.IdempotencyKey)
			if err == nil {
				rec = prev
				return nil
			}
			if !errors.Is(err, common.ErrorNotFound) {
				return err
			}
		}

		var err error
		cur, err = repo.GetForUpdate(ctx, inst.ID)
		if err != nil {
			return err
		}

		switch cur.Status {
		case models.InstrumentUsed, models.InstrumentExpired, models.InstrumentFrozen:
			return fmt.Errorf("instrument %s is %s: %w", cur.ID, cur.Status, common.ErrInstrumentUnavailable)
		}
		if cur.CapReached() {
			return fmt.Errorf("instrument %s reached its cap: %w", cur.ID, common.ErrInstrumentUnavailable)
		}

		cur.UseCount++
		if success {
			cur.SuccessCount++
		}
		cur.Status = settledStatus(cur)
		if err := repo.UpdateState(ctx, cur); err != nil {
			return err
		}

		rec = &models.UsageRecord{
			ID:             uuid.NewString(),
			InstrumentID:   cur.ID,
			AccountID:      opts.AccountID,
			Success:        success,
			Amount:         opts.Amount,
			IdempotencyKey: opts.IdempotencyKey,
			CreatedAt:      p.now(),
		}
		return repo.AddUsage(ctx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("use instrument %s: %w", inst.ID, err)
	}

	if cur != nil {
		inst.UseCount, inst.SuccessCount, inst.Status = cur.UseCount, cur.SuccessCount, cur.Status
		p.log.Info(ctx, "instrument used", "instrument", inst.ID, "success", success, "use_count", inst.UseCount, "status", string(inst.Status))
	}
	return rec, nil
}

// Release returns an in_use instrument to the pool without counting a use.
// Releasing an instrument in any other status is a no-op.
func (p *Pool) Release(ctx context.Context, inst *models.Instrument) error {
	unlock := p.lock(inst.Pool())
	defer unlock()

	var released bool
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := p.repos.Instruments(tx)

		cur, err := repo.GetForUpdate(ctx, inst.ID)
		if err != nil {
			return err
		}
		if cur.Status != models.InstrumentInUse {
			return nil
		}

		cur.Status = settledStatus(cur)
		if err := repo.UpdateState(ctx, cur); err != nil {
			return err
		}
		inst.Status = cur.Status
		released = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("release instrument %s: %w", inst.ID, err)
	}
	if released {
		p.log.Info(ctx, "instrument released", "instrument", inst.ID, "status", string(inst.Status))
	}
	return nil
}

// Stats summarizes a pool for status displays.
type Stats struct {
	Total     int
	Available int
	InUse     int
	Used      int
	Expired   int
	Frozen    int
}

// Stats counts the instruments of a pool by status, applying expiry at
// read time without writing it back.
func (p *Pool) Stats(ctx context.Context, key models.PoolKey) (Stats, error) {
	list, err := p.repos.Instruments(p.db).List(ctx, &key)
	if err != nil {
		return Stats{}, err
	}

	now := p.now()
	var s Stats
	for i := range list {
		s.Total++
		inst := &list[i]
		switch {
		case inst.Status == models.InstrumentAvailable && inst.Allocatable(now):
			s.Available++
		case inst.Status == models.InstrumentAvailable && inst.Expired(now):
			s.Expired++
		case inst.Status == models.InstrumentAvailable:
			// cap reached but not yet settled
			s.Used++
		case inst.Status == models.InstrumentInUse:
			s.InUse++
		case inst.Status == models.InstrumentUsed:
			s.Used++
		case inst.Status == models.InstrumentExpired:
			s.Expired++
		case inst.Status == models.InstrumentFrozen:
			s.Frozen++
		}
	}
	return s, nil
}

func settledStatus(inst *models.Instrument) models.InstrumentStatus {
	if inst.CapReached() {
		return models.InstrumentUsed
	}
	return models.InstrumentAvailable
}
