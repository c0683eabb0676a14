package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonarbot/core"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// advanceUntil ticks clk until done is closed.
func advanceUntil(t *testing.T, clk *core.SimClock, done <-chan struct{}) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		select {
		case <-done:
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out advancing simulated clock")
		}
		clk.Advance(1)
		time.Sleep(50 * time.Microsecond)
	}
}

func TestGPIOOutputs(t *testing.T) {
	clk := core.NewSimClock(0)
	g := NewGPIO(clk)

	assert.ErrorIs(t, g.SetPin(5, true), ErrNotConfigured)
	_, err := g.GetPin(5)
	assert.ErrorIs(t, err, ErrNotConfigured)

	require.NoError(t, g.ConfigureOutput(5))
	assert.True(t, g.IsOutput(5))
	clk.Advance(3)
	require.NoError(t, g.SetPin(5, true))
	clk.Advance(2)
	require.NoError(t, g.SetPin(5, false))

	v, err := g.GetPin(5)
	require.NoError(t, err)
	assert.False(t, v)
	assert.Equal(t, []Edge{{At: 3, Level: true}, {At: 5, Level: false}}, g.History(5))

	assert.ErrorIs(t, g.Drive(5, true), ErrNotInput)
}

func TestGPIOInputs(t *testing.T) {
	clk := core.NewSimClock(0)
	g := NewGPIO(clk)

	require.NoError(t, g.ConfigureInput(7, core.PullUp))
	assert.True(t, g.ReadPin(7))
	assert.ErrorIs(t, g.SetPin(7, false), ErrNotOutput)

	require.NoError(t, g.Drive(7, false))
	assert.False(t, g.ReadPin(7))
	assert.False(t, g.ReadPin(99), "unknown pins read low")
}

func TestGPIOWaitForLevel(t *testing.T) {
	ctx := testContext(t)
	clk := core.NewSimClock(0)
	g := NewGPIO(clk)
	require.NoError(t, g.ConfigureInput(11, core.PullNone))

	got := make(chan core.Ticks, 1)
	go func() {
		at, err := g.WaitForLevel(ctx, 11, true, 0)
		if err == nil {
			got <- at
		}
	}()

	clk.Advance(12)
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.waiters) == 1
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, g.Drive(11, true))

	select {
	case at := <-got:
		assert.Equal(t, core.Ticks(12), at)
	case <-ctx.Done():
		t.Fatal("waiter never released")
	}

	// Already at level: the last transition is reported.
	clk.Advance(5)
	at, err := g.WaitForLevel(ctx, 11, true, 0)
	require.NoError(t, err)
	assert.Equal(t, core.Ticks(12), at)
}

func TestGPIOWaitForLevelTimeout(t *testing.T) {
	ctx := testContext(t)
	clk := core.NewSimClock(0)
	g := NewGPIO(clk)
	require.NoError(t, g.ConfigureInput(11, core.PullNone))

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = g.WaitForLevel(ctx, 11, true, 20)
	}()
	advanceUntil(t, clk, done)

	assert.ErrorIs(t, err, core.ErrEchoTimeout)
	g.mu.Lock()
	assert.Empty(t, g.waiters)
	g.mu.Unlock()
}

func TestGPIOWaitForLevelCancelled(t *testing.T) {
	clk := core.NewSimClock(0)
	g := NewGPIO(clk)
	require.NoError(t, g.ConfigureInput(11, core.PullNone))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.WaitForLevel(ctx, 11, true, 0)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGPIOObservers(t *testing.T) {
	clk := core.NewSimClock(0)
	g := NewGPIO(clk)
	require.NoError(t, g.ConfigureOutput(3))

	var seen []Edge
	g.OnChange(3, func(level bool, at core.Ticks) {
		seen = append(seen, Edge{At: at, Level: level})
	})
	require.NoError(t, g.SetPin(3, true))
	require.NoError(t, g.SetPin(3, true)) // no change, no callback
	clk.Advance(4)
	require.NoError(t, g.SetPin(3, false))

	assert.Equal(t, []Edge{{At: 0, Level: true}, {At: 4, Level: false}}, seen)
}

func TestEchoAnswersTrigger(t *testing.T) {
	clk := core.NewSimClock(0)
	g := NewGPIO(clk)
	require.NoError(t, g.ConfigureOutput(9))
	require.NoError(t, g.ConfigureInput(11, core.PullNone))

	e := NewEcho(g, clk, 9, 11)
	e.SetLatency(3)
	e.SetWidth(10)

	require.NoError(t, g.SetPin(9, true))
	clk.Advance(1)
	require.NoError(t, g.SetPin(9, false))
	clk.Advance(20)

	assert.Equal(t, uint32(1), e.Pulses())
	assert.Equal(t, []Edge{{At: 4, Level: true}, {At: 14, Level: false}}, g.History(11))
}

func TestEchoZeroWidthStaysLow(t *testing.T) {
	clk := core.NewSimClock(0)
	g := NewGPIO(clk)
	require.NoError(t, g.ConfigureOutput(9))
	require.NoError(t, g.ConfigureInput(11, core.PullNone))
	e := NewEcho(g, clk, 9, 11)

	require.NoError(t, g.SetPin(9, true))
	require.NoError(t, g.SetPin(9, false))
	clk.Advance(100)

	assert.Zero(t, e.Pulses())
	assert.Empty(t, g.History(11))
}

func TestPulseTimerWithEchoModel(t *testing.T) {
	ctx := testContext(t)
	clk := core.NewSimClock(0)
	g := NewGPIO(clk)
	e := NewEcho(g, clk, 9, 11)
	e.SetWidth(23)

	pt := &core.PulseTimer{GPIO: g, Clock: clk, Trigger: 9, Echo: 11, Timeout: 60}
	require.NoError(t, pt.Configure())

	for _, width := range []core.Ticks{23, 1, 59} {
		e.SetWidth(width)
		done := make(chan struct{})
		var got core.Ticks
		var err error
		go func() {
			defer close(done)
			got, err = pt.Measure(ctx)
		}()
		advanceUntil(t, clk, done)

		require.NoError(t, err)
		assert.Equal(t, width, got)
	}
}

func TestPulseTimerNoEchoTimesOut(t *testing.T) {
	ctx := testContext(t)
	clk := core.NewSimClock(0)
	g := NewGPIO(clk)
	NewEcho(g, clk, 9, 11)

	pt := &core.PulseTimer{GPIO: g, Clock: clk, Trigger: 9, Echo: 11, Timeout: 60}
	require.NoError(t, pt.Configure())

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = pt.Measure(ctx)
	}()
	advanceUntil(t, clk, done)

	assert.ErrorIs(t, err, core.ErrEchoTimeout)
	assert.Contains(t, err.Error(), "rising edge")
}
