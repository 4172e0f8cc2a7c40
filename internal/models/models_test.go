package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Report(t *testing.T) {
	assert.Equal(t, "SUBSCRIBED_ENHANCED", StatusSubscribed.Report(true))
	assert.Equal(t, "SUBSCRIBED", StatusSubscribed.Report(false))
	assert.Equal(t, "ERROR", StatusError.Report(true))
	assert.True(t, StatusIneligible.Terminal())
	assert.False(t, StatusError.Terminal())
}

func TestPoolFor(t *testing.T) {
	assert.Equal(t, "public", PoolFor("").String())
	assert.Equal(t, "private:acme", PoolFor("acme").String())
}

func TestInstrument_Allocatable(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		inst Instrument
		want bool
	}{
		{"fresh unlimited", Instrument{Status: InstrumentAvailable}, true},
		{"below cap", Instrument{Status: InstrumentAvailable, UseCount: 1, MaxUseCount: 2}, true},
		{"at cap", Instrument{Status: InstrumentAvailable, UseCount: 2, MaxUseCount: 2}, false},
		{"in use", Instrument{Status: InstrumentInUse}, false},
		{"frozen", Instrument{Status: InstrumentFrozen}, false},
		{"expired", Instrument{Status: InstrumentAvailable, ExpiresAt: &past}, false},
		{"expires exactly now", Instrument{Status: InstrumentAvailable, ExpiresAt: &now}, false},
		{"expires later", Instrument{Status: InstrumentAvailable, ExpiresAt: &future}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.inst.Allocatable(now))
		})
	}
}

func TestCard_Last4(t *testing.T) {
	assert.Equal(t, "1111", Card{Number: "4111111111111111"}.Last4())
	assert.Equal(t, "12", Card{Number: "12"}.Last4())
}
