package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/cryptox"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/dmitrijs2005/gophenroll/internal/pool"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/repomanager"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/sqlitetest"
	"github.com/dmitrijs2005/gophenroll/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_SingleUseInstrumentSpentByFailedPayment(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.Open(t)
	repos := &repomanager.SQLiteRepositoryManager{}

	sealer, err := cryptox.NewSealer(common.GenerateRandByteArray(cryptox.KeySize))
	require.NoError(t, err)
	card := models.Card{Number: "5555555555554444", ExpMonth: 1, ExpYear: 2031, CVV: "321"}
	sealed, err := sealer.Seal(card)
	require.NoError(t, err)

	inst := &models.Instrument{
		ID: "single", PoolType: models.PoolPublic, MaxUseCount: 1,
		Status: models.InstrumentAvailable, CreatedAt: time.Now().UTC(),
		Last4: card.Last4(), SealedCard: sealed,
	}
	require.NoError(t, repos.Instruments(db).Create(ctx, inst))

	driver := &fakeDriver{
		detections: []session.Detection{detected(session.DetectedVerified)},
		payment:    session.PaymentResult{OK: false, Message: "card declined"},
	}
	progress := repos.Progress(db)
	orch := New(driver, &fakeVerifier{}, pool.New(db, repos, sealer, logging.NewNop()), progress, Config{HasAPIKey: true}, logging.NewNop())

	out := orch.Process(ctx, &models.Account{Email: "a@example.com"})
	assert.Equal(t, models.StatusError, out.Status)
	assert.Equal(t, "card declined", out.Message)

	got, err := repos.Instruments(db).Get(ctx, "single")
	require.NoError(t, err)
	assert.Equal(t, models.InstrumentUsed, got.Status)
	assert.Equal(t, 1, got.UseCount)
	assert.Zero(t, got.SuccessCount)

	p, err := progress.Get(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, p.Status)
	assert.Equal(t, "single", p.InstrumentID)

	second := orch.Process(ctx, &models.Account{Email: "b@example.com"})
	assert.Equal(t, MsgNoInstrument, second.Message, "spent instrument is never handed out again")
}
