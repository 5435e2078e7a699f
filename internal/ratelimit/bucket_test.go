package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsume_NeverExceedsCapacity(t *testing.T) {
	l := New()
	const capacity = 5

	// Drain the bucket fully.
	for i := 0; i < capacity; i++ {
		assert.True(t, l.Consume("team-a", DimensionRPM, capacity, 1))
	}
	// One more should be rejected; the burst never exceeds capacity even
	// immediately after creation.
	assert.False(t, l.Consume("team-a", DimensionRPM, capacity, 1))
}

func TestConsume_UnlimitedWhenLimitNonPositive(t *testing.T) {
	l := New()
	for i := 0; i < 1000; i++ {
		assert.True(t, l.Consume("team-a", DimensionTPM, 0, 100))
	}
}

func TestConsume_SeparateDimensionsIndependent(t *testing.T) {
	l := New()
	assert.True(t, l.Consume("team-a", DimensionRPM, 1, 1))
	assert.False(t, l.Consume("team-a", DimensionRPM, 1, 1))
	// tpm bucket is independent of rpm for the same team
	assert.True(t, l.Consume("team-a", DimensionTPM, 1, 1))
}

func TestConsume_LimitChangeRebuildsBucket(t *testing.T) {
	l := New()
	assert.True(t, l.Consume("team-a", DimensionRPM, 1, 1))
	assert.False(t, l.Consume("team-a", DimensionRPM, 1, 1))
	// Raising the limit rebuilds the bucket with fresh capacity.
	assert.True(t, l.Consume("team-a", DimensionRPM, 5, 1))
}
