package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateWait(t *testing.T) {
	state := &ResourceQueueState{
		CapacityUnit:     2,
		TurnoverDuration: 10 * time.Minute,
	}

	tests := []struct {
		rank int64
		want time.Duration
	}{
		{0, 0},
		{1, 10 * time.Minute},
		{2, 10 * time.Minute},
		{3, 20 * time.Minute},
		{4, 20 * time.Minute},
		{5, 30 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, state.EstimateWait(tt.rank), "rank %d", tt.rank)
	}
}

func TestEstimateWait_DegenerateCapacity(t *testing.T) {
	state := &ResourceQueueState{CapacityUnit: 0, TurnoverDuration: 10 * time.Minute}
	assert.Equal(t, time.Duration(0), state.EstimateWait(5))
}

func TestValidatePartySize(t *testing.T) {
	state := &ResourceQueueState{MinPartySize: 1, MaxPartySize: 8}

	assert.False(t, state.ValidatePartySize(0))
	assert.True(t, state.ValidatePartySize(1))
	assert.True(t, state.ValidatePartySize(8))
	assert.False(t, state.ValidatePartySize(9))
}
