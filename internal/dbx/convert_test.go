package dbx

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMillisRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	assert.Equal(t, ts, FromMillis(Millis(ts)))
}

func TestNullMillis(t *testing.T) {
	assert.False(t, NullMillis(nil).Valid)
	assert.Nil(t, TimePtr(sql.NullInt64{}))

	ts := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	got := TimePtr(NullMillis(&ts))
	if assert.NotNil(t, got) {
		assert.True(t, ts.Equal(*got))
	}
}

func TestNullString(t *testing.T) {
	assert.False(t, NullString("").Valid)
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, NullString("x"))
}
