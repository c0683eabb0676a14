package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDue(t *testing.T) {
	assert.True(t, Due(100, 100))
	assert.True(t, Due(101, 100))
	assert.False(t, Due(99, 100))

	// Deadlines just past the wrap point are still in the future.
	assert.False(t, Due(0xFFFFFFF0, 0x10))
	assert.True(t, Due(0x10, 0xFFFFFFF0))
}

func TestTicksFromDuration(t *testing.T) {
	assert.Equal(t, Ticks(0), TicksFromDuration(0, time.Millisecond))
	assert.Equal(t, Ticks(25), TicksFromDuration(25*time.Millisecond, time.Millisecond))
	assert.Equal(t, Ticks(3), TicksFromDuration(25*time.Millisecond, 10*time.Millisecond), "rounds up")
	assert.Equal(t, Ticks(1), TicksFromDuration(time.Microsecond, time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, TicksToDuration(5, 10*time.Millisecond))
}

func TestTicksFromMS(t *testing.T) {
	assert.Equal(t, Ticks(170), TicksFromMS(170, 1))
	assert.Equal(t, Ticks(17), TicksFromMS(170, 10))
	assert.Equal(t, Ticks(18), TicksFromMS(171, 10))
	assert.Equal(t, Ticks(9), TicksFromMS(9, 0))
	assert.Equal(t, uint32(1), TickLengthMS(100*time.Microsecond))
	assert.Equal(t, uint32(10), TickLengthMS(10*time.Millisecond))
}
