package progress

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

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestPostgres_Save(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ts := time.UnixMilli(5000)

	mock.ExpectExec(`(?s)INSERT INTO progress .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)\s+ON CONFLICT \(account_id\) DO UPDATE SET`).
		WithArgs("a", "ERROR", "no instrument available", false,
			sql.NullString{}, sql.NullString{}, int64(5000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO progress`).WillReturnError(errors.New("deadlock"))

	require.NoError(t, repo.Save(context.Background(), &models.Progress{
		AccountID: "a", Status: models.StatusError, Message: "no instrument available", UpdatedAt: ts,
	}))
	require.ErrorContains(t, repo.Save(context.Background(), &models.Progress{AccountID: "b"}), "save progress[b]: deadlock")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)SELECT account_id, status, message, enhanced, verification_link, instrument_id, updated_at\s+FROM progress WHERE account_id = \$1`
	cols := []string{"account_id", "status", "message", "enhanced", "verification_link", "instrument_id", "updated_at"}

	mock.ExpectQuery(q).WithArgs("a").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a", "VERIFIED", "verification approved, awaiting status refresh", false, "https://v", nil, int64(10)))
	mock.ExpectQuery(q).WithArgs("b").WillReturnError(sql.ErrNoRows)

	got, err := repo.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, got.Status)
	assert.Equal(t, "https://v", got.VerificationLink)

	_, err = repo.Get(context.Background(), "b")
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Pending(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`^SELECT account_id FROM progress WHERE status = \$1$`).WithArgs("SUBSCRIBED").
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("A"))
	mock.ExpectQuery(`^SELECT account_id FROM progress`).WillReturnError(errors.New("gone"))

	pending, err := repo.Pending(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, pending)

	_, err = repo.Pending(context.Background(), []string{"A"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
