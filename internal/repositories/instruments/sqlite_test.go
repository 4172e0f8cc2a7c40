package instruments

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/sqlitetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func newInstrument(id string, pool models.PoolKey, useCount, maxUse int, created time.Time) *models.Instrument {
	return &models.Instrument{
		ID: id, PoolType: pool.Type, Owner: pool.Owner,
		UseCount: useCount, MaxUseCount: maxUse,
		Status: models.InstrumentAvailable, CreatedAt: created,
		Last4: "1111", SealedCard: []byte("sealed-" + id),
	}
}

func TestSQLite_CreateGetList(t *testing.T) {
	r := NewSQLiteRepository(sqlitetest.Open(t))
	ctx := context.Background()
	exp := t0.Add(24 * time.Hour)

	pub := newInstrument("i1", models.PoolFor(""), 0, 3, t0)
	pub.ExpiresAt = &exp
	require.NoError(t, r.Create(ctx, pub))
	require.NoError(t, r.Create(ctx, newInstrument("i2", models.PoolFor("acme"), 0, 0, t0.Add(time.Second))))

	got, err := r.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, models.PoolPublic, got.PoolType)
	assert.Equal(t, 3, got.MaxUseCount)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, exp.Equal(*got.ExpiresAt))
	assert.Equal(t, []byte("sealed-i1"), got.SealedCard)

	_, err = r.GetForUpdate(ctx, "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)

	all, err := r.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	acme := models.PoolFor("acme")
	private, err := r.List(ctx, &acme)
	require.NoError(t, err)
	require.Len(t, private, 1)
	assert.Equal(t, "i2", private[0].ID)
}

func TestSQLite_FindAvailableOrdering(t *testing.T) {
	r := NewSQLiteRepository(sqlitetest.Open(t))
	ctx := context.Background()
	pool := models.PoolFor("")

	require.NoError(t, r.Create(ctx, newInstrument("c", pool, 1, 0, t0)))
	require.NoError(t, r.Create(ctx, newInstrument("b", pool, 0, 0, t0.Add(time.Minute))))
	require.NoError(t, r.Create(ctx, newInstrument("a", pool, 0, 0, t0.Add(time.Minute))))
	require.NoError(t, r.Create(ctx, newInstrument("capped", pool, 2, 2, t0.Add(-time.Hour))))
	require.NoError(t, r.Create(ctx, newInstrument("other-pool", models.PoolFor("acme"), 0, 0, t0.Add(-time.Hour))))

	got, err := r.FindAvailable(ctx, pool, t0)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID, "lowest use count, then oldest, then id")

	got.Status = models.InstrumentInUse
	require.NoError(t, r.UpdateState(ctx, got))

	got, err = r.FindAvailable(ctx, pool, t0)
	require.NoError(t, err)
	assert.Equal(t, "b", got.ID)
}

func TestSQLite_ExpireStale(t *testing.T) {
	r := NewSQLiteRepository(sqlitetest.Open(t))
	ctx := context.Background()
	pool := models.PoolFor("")
	past := t0.Add(-time.Second)

	stale := newInstrument("stale", pool, 0, 0, t0)
	stale.ExpiresAt = &past
	require.NoError(t, r.Create(ctx, stale))

	_, err := r.FindAvailable(ctx, pool, t0)
	require.ErrorIs(t, err, common.ErrorNotFound, "expired instruments are never returned")

	n, err := r.ExpireStale(ctx, pool, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := r.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, models.InstrumentExpired, got.Status)
}

func TestSQLite_UpdateStateMissing(t *testing.T) {
	r := NewSQLiteRepository(sqlitetest.Open(t))
	err := r.UpdateState(context.Background(), &models.Instrument{ID: "ghost", Status: models.InstrumentUsed})
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSQLite_Usages(t *testing.T) {
	r := NewSQLiteRepository(sqlitetest.Open(t))
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newInstrument("i1", models.PoolFor(""), 0, 0, t0)))

	require.NoError(t, r.AddUsage(ctx, &models.UsageRecord{
		ID: "u1", InstrumentID: "i1", AccountID: "a@example.com", Success: true,
		Amount:         decimal.NewNullDecimal(decimal.RequireFromString("9.99")),
		IdempotencyKey: "a@example.com:i1", CreatedAt: t0,
	}))
	require.NoError(t, r.AddUsage(ctx, &models.UsageRecord{
		ID: "u2", InstrumentID: "i1", AccountID: "b@example.com", CreatedAt: t0.Add(time.Second),
	}))
	require.Error(t, r.AddUsage(ctx, &models.UsageRecord{
		ID: "u3", InstrumentID: "i1", IdempotencyKey: "a@example.com:i1", CreatedAt: t0,
	}), "idempotency keys are unique")

	rec, err := r.UsageByKey(ctx, "a@example.com:i1")
	require.NoError(t, err)
	assert.True(t, rec.Success)
	require.True(t, rec.Amount.Valid)
	assert.True(t, rec.Amount.Decimal.Equal(decimal.RequireFromString("9.99")))

	_, err = r.UsageByKey(ctx, "unknown")
	require.ErrorIs(t, err, common.ErrorNotFound)

	list, err := r.Usages(ctx, "i1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u2", list[1].ID)
	assert.False(t, list[1].Amount.Valid)
	assert.Empty(t, list[1].IdempotencyKey)
}
