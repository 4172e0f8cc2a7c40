package instruments

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var instrumentCols = []string{"id", "pool_type", "owner", "use_count", "max_use_count", "success_count",
	"status", "expires_at", "created_at", "last4", "card"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestPostgres_FindAvailableSkipsLocked(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.UnixMilli(1_000)

	q := `(?s)SELECT .* FROM instruments\s+WHERE pool_type = \$1 AND owner = \$2 AND status = 'available'.*ORDER BY use_count, created_at, id\s+LIMIT 1\s+FOR UPDATE SKIP LOCKED`
	mock.ExpectQuery(q).WithArgs("private", "acme", int64(1_000)).
		WillReturnRows(sqlmock.NewRows(instrumentCols).
			AddRow("8d0f6c1e-0000-4000-8000-000000000001", "private", "acme", 0, 1, 0, "available", nil, int64(500), "4242", []byte("c")))
	mock.ExpectQuery(q).WithArgs("public", "", int64(1_000)).WillReturnError(sql.ErrNoRows)

	inst, err := repo.FindAvailable(context.Background(), models.PoolFor("acme"), now)
	require.NoError(t, err)
	assert.Equal(t, "4242", inst.Last4)
	assert.Nil(t, inst.ExpiresAt)

	_, err = repo.FindAvailable(context.Background(), models.PoolFor(""), now)
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetForUpdateLocksRow(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT .* FROM instruments WHERE id = \$1 FOR UPDATE$`).WithArgs("i1").
		WillReturnRows(sqlmock.NewRows(instrumentCols).
			AddRow("i1", "public", "", 1, 1, 1, "used", int64(9_000), int64(500), "4242", []byte("c")))

	inst, err := repo.GetForUpdate(context.Background(), "i1")
	require.NoError(t, err)
	assert.Equal(t, models.InstrumentUsed, inst.Status)
	require.NotNil(t, inst.ExpiresAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateState(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)UPDATE instruments SET status = \$1, use_count = \$2, success_count = \$3\s+WHERE id = \$4`

	mock.ExpectExec(q).WithArgs("used", 1, 0, "i1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("available", 0, 0, "gone").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WillReturnError(errors.New("check violation"))

	require.NoError(t, repo.UpdateState(context.Background(), &models.Instrument{ID: "i1", Status: models.InstrumentUsed, UseCount: 1}))
	require.ErrorIs(t, repo.UpdateState(context.Background(), &models.Instrument{ID: "gone", Status: models.InstrumentAvailable}), common.ErrorNotFound)
	require.ErrorContains(t, repo.UpdateState(context.Background(), &models.Instrument{ID: "x"}), "check violation")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ExpireStale(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)UPDATE instruments SET status = 'expired'.*expires_at <= \$3`).
		WithArgs("public", "", int64(2_000)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ExpireStale(context.Background(), models.PoolFor(""), time.UnixMilli(2_000))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AddUsage(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`INSERT INTO instrument_usages`).
		WithArgs("u1", "i1", "a@example.com", false, nil, "a@example.com:i1", int64(3_000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddUsage(context.Background(), &models.UsageRecord{
		ID: "u1", InstrumentID: "i1", AccountID: "a@example.com",
		IdempotencyKey: "a@example.com:i1", CreatedAt: time.UnixMilli(3_000),
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}
