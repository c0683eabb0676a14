package robot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonarbot/core"
	"sonarbot/sim"
)

func TestDistanceAndDelay(t *testing.T) {
	assert.Equal(t, uint32(17), DistanceCM(1, 1))
	assert.Equal(t, uint32(170), BlinkDelayMS(DistanceCM(1, 1)))

	assert.Equal(t, uint32(34), DistanceCM(1, 2), "scales with the tick length")
	assert.Equal(t, uint32(340), BlinkDelayMS(DistanceCM(1, 2)))

	assert.Equal(t, uint32(17*12), DistanceCM(12, 1))
	assert.Zero(t, DistanceCM(0, 1))
}

func newTestIndicator(t *testing.T, clk *core.SimClock, cell *core.MeasurementCell) (*Indicator, *sim.GPIO) {
	t.Helper()
	g := sim.NewGPIO(clk)
	ind := &Indicator{
		Cell:     cell,
		Clock:    clk,
		GPIO:     g,
		LED:      2,
		TickMS:   1,
		Pulse:    25,
		TracePin: core.NoPin,
	}
	require.NoError(t, ind.Configure())
	return ind, g
}

func TestIndicatorStepTreatsZeroAsOne(t *testing.T) {
	ctx := testContext(t)
	clk := core.NewSimClock(0)
	rep := &recordingReporter{}
	ind, g := newTestIndicator(t, clk, core.NewMeasurementCell())
	ind.Reporter = rep

	type result struct {
		delay core.Ticks
		err   error
	}
	done := make(chan result, 1)
	go func() {
		d, err := ind.Step(ctx)
		done <- result{d, err}
	}()

	require.NoError(t, clk.BlockUntil(ctx, 1))
	assert.True(t, g.ReadPin(2), "led lit during the pulse")
	clk.Advance(25)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, core.Ticks(170), res.delay)
	assert.False(t, g.ReadPin(2))
	assert.Equal(t, []sim.Edge{{At: 0, Level: true}, {At: 25, Level: false}}, g.History(2))
	assert.Equal(t, uint32(1), ind.Blinks())
	require.Len(t, rep.blinks, 1)
	assert.Equal(t, uint32(170), rep.blinks[0].DelayMS)
}

func TestIndicatorStepIgnoresTracePinFailure(t *testing.T) {
	ctx := testContext(t)
	clk := core.NewSimClock(0)
	cell := core.NewMeasurementCell()
	require.NoError(t, cell.Store(ctx, 1))
	ind, g := newTestIndicator(t, clk, cell)
	// Never configured, so every trace write fails.
	ind.TracePin = 9

	done := make(chan error, 1)
	go func() {
		_, err := ind.Step(ctx)
		done <- err
	}()

	require.NoError(t, clk.BlockUntil(ctx, 1))
	clk.Advance(25)

	require.NoError(t, <-done)
	assert.Equal(t, uint32(1), ind.Blinks())
	assert.Empty(t, g.History(9))
}

func TestIndicatorDelayFollowsDistance(t *testing.T) {
	ctx := testContext(t)
	clk := core.NewSimClock(0)
	cell := core.NewMeasurementCell()
	require.NoError(t, cell.Store(ctx, 4))
	ind, _ := newTestIndicator(t, clk, cell)
	ind.Pulse = 1

	done := make(chan core.Ticks, 1)
	go func() {
		d, err := ind.Step(ctx)
		if err == nil {
			done <- d
		}
	}()
	require.NoError(t, clk.BlockUntil(ctx, 1))
	clk.Advance(1)

	assert.Equal(t, core.Ticks(4*17*10), <-done)
}

func TestIndicatorRunPaces(t *testing.T) {
	ctx := testContext(t)
	clk := core.NewSimClock(0)
	ind, g := newTestIndicator(t, clk, core.NewMeasurementCell())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- ind.Run(runCtx) }()

	// Pulse of 25 ticks, then a 170 tick pause, so blinks start 195 apart.
	for i := 0; i < 3; i++ {
		require.NoError(t, clk.BlockUntil(ctx, 1))
		clk.Advance(25)
		require.NoError(t, clk.BlockUntil(ctx, 1))
		clk.Advance(170)
	}
	require.NoError(t, clk.BlockUntil(ctx, 1))
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	var rises []core.Ticks
	for _, e := range g.History(2) {
		if e.Level {
			rises = append(rises, e.At)
		}
	}
	assert.Equal(t, []core.Ticks{0, 195, 390, 585}, rises)
}
