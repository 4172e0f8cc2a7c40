package progress

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_SaveIsUpsert(t *testing.T) {
	r := NewSQLiteRepository(sqlitetest.Open(t))
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.Save(ctx, &models.Progress{
		AccountID: "a", Status: models.StatusLinkReady, Message: "verification link saved",
		VerificationLink: "https://verify/x?verificationId=v1", UpdatedAt: now,
	}))
	require.NoError(t, r.Save(ctx, &models.Progress{
		AccountID: "a", Status: models.StatusSubscribed, Enhanced: true,
		VerificationLink: "https://verify/x?verificationId=v1", InstrumentID: "i-1", UpdatedAt: now.Add(time.Minute),
	}))

	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubscribed, got.Status)
	assert.True(t, got.Enhanced)
	assert.Empty(t, got.Message)
	assert.Equal(t, "i-1", got.InstrumentID)
	assert.True(t, now.Add(time.Minute).Equal(got.UpdatedAt))

	_, err = r.Get(ctx, "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSQLite_PendingSkipsOnlySubscribed(t *testing.T) {
	r := NewSQLiteRepository(sqlitetest.Open(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, &models.Progress{AccountID: "A", Status: models.StatusSubscribed, UpdatedAt: time.Now()}))
	require.NoError(t, r.Save(ctx, &models.Progress{AccountID: "B", Status: models.StatusError, Message: "login failed", UpdatedAt: time.Now()}))
	require.NoError(t, r.Save(ctx, &models.Progress{AccountID: "D", Status: models.StatusIneligible, UpdatedAt: time.Now()}))

	pending, err := r.Pending(ctx, []string{"A", "B", "C", "D"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "D"}, pending)

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, "A", list[0].AccountID)
}
