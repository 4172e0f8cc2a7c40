package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected *Config
		wantErr  bool
	}{
		{
			name: "all short flags",
			args: []string{
				"-a", ":6000", "-k", "postgres", "-d", "postgres://db", "-m", "pw",
				"-v", "http://verifier", "-x", "key", "-w", "http://driver", "-n", "4",
				"-l", "warn", "-b", "bucket",
			},
			expected: &Config{
				ListenAddr:     ":6000",
				StorageDriver:  "postgres",
				DatabaseDSN:    "postgres://db",
				MasterPassword: "pw",
				VerifierURL:    "http://verifier",
				VerifierAPIKey: "key",
				DriverURL:      "http://driver",
				Concurrency:    4,
				LogLevel:       "warn",
				S3Bucket:       "bucket",
			},
		},
		{
			name:     "foreign flags ignored",
			args:     []string{"start", "--ids", "a,b", "-n", "2"},
			expected: &Config{Concurrency: 2},
		},
		{
			name:    "bad int",
			args:    []string{"-n", "many"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			err := parseFlags(cfg, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, cfg, decimalEq))
		})
	}
}
