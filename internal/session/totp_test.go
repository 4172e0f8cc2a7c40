package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Seed is base32("12345678901234567890"), the RFC 6238 SHA-1 test key.
const rfcSeed = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestTOTP_RFCVectors(t *testing.T) {
	tests := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}
	for _, tt := range tests {
		got, err := TOTP(rfcSeed, time.Unix(tt.unix, 0))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "t=%d", tt.unix)
	}
}

func TestTOTP_SeedFormatting(t *testing.T) {
	at := time.Unix(59, 0)
	want, err := TOTP(rfcSeed, at)
	require.NoError(t, err)

	got, err := TOTP("gezd gnbv gy3t qojq gezd gnbv gy3t qojq", at)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = TOTP("not base32!", at)
	require.Error(t, err)
}
