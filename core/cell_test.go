package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasurementCellStartsAtZero(t *testing.T) {
	cell := NewMeasurementCell()
	v, err := cell.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Ticks(0), v)
}

func TestMeasurementCellAcquireWriteRelease(t *testing.T) {
	ctx := context.Background()
	cell := NewMeasurementCell()

	g, err := cell.Acquire(ctx)
	require.NoError(t, err)
	g.Write(42)
	assert.Equal(t, Ticks(42), g.Read())

	_, ok := cell.TryAcquire()
	assert.False(t, ok, "guard is held")

	g.Release()
	g2, ok := cell.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, Ticks(42), g2.Read())
	g2.Release()
}

func TestMeasurementCellReleaseTwicePanics(t *testing.T) {
	g, err := NewMeasurementCell().Acquire(context.Background())
	require.NoError(t, err)
	g.Release()

	assert.Panics(t, func() { g.Release() })
	assert.Panics(t, func() { g.Read() })
	assert.Panics(t, func() { g.Write(1) })
}

func TestMeasurementCellAcquireHonoursContext(t *testing.T) {
	cell := NewMeasurementCell()
	g, err := cell.Acquire(context.Background())
	require.NoError(t, err)
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = cell.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMeasurementCellWaitsForRelease(t *testing.T) {
	cell := NewMeasurementCell()
	g, err := cell.Acquire(context.Background())
	require.NoError(t, err)

	ctx := testContext(t)
	got := make(chan Ticks, 1)
	go func() {
		v, err := cell.Load(ctx)
		if err == nil {
			got <- v
		}
	}()

	g.Write(9)
	time.Sleep(5 * time.Millisecond)
	g.Release()

	select {
	case v := <-got:
		assert.Equal(t, Ticks(9), v)
	case <-time.After(5 * time.Second):
		t.Fatal("reader never acquired the cell")
	}
}

func TestMeasurementCellExclusive(t *testing.T) {
	ctx := context.Background()
	cell := NewMeasurementCell()
	var holders, violations atomic.Int32

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				g, err := cell.Acquire(ctx)
				if err != nil {
					return
				}
				if holders.Add(1) != 1 {
					violations.Add(1)
				}
				g.Write(g.Read() + 1)
				holders.Add(-1)
				g.Release()
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, violations.Load())
	v, err := cell.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Ticks(8*500), v)
}

func TestMeasurementCellNoTornReads(t *testing.T) {
	ctx := context.Background()
	cell := NewMeasurementCell()
	const pattern = 0x10001 // every written value is a multiple of this

	var wg sync.WaitGroup
	var torn atomic.Int32
	stop := make(chan struct{})

	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				_ = cell.Store(ctx, Ticks((i+seed)%0xFFFF)*pattern)
			}
		}(w * 7919)
	}

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				v, err := cell.Load(ctx)
				if err != nil || v%pattern != 0 {
					torn.Add(1)
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()
	assert.Zero(t, torn.Load())
}
