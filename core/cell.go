package core

import "context"

// MeasurementCell holds the latest distance reading, in ticks, behind a
// binary guard. One task writes it, others read it, and all of them go
// through Acquire/Release.
//
// The zero value is not usable; create cells with NewMeasurementCell.
type MeasurementCell struct {
	sem   chan struct{}
	value Ticks
}

// Guard is exclusive access to a MeasurementCell, valid until Release.
type Guard struct {
	cell     *MeasurementCell
	released bool
}

// NewMeasurementCell creates a cell holding 0, meaning "no measurement yet".
func NewMeasurementCell() *MeasurementCell {
	return &MeasurementCell{sem: make(chan struct{}, 1)}
}

// Acquire blocks until the caller holds the cell exclusively. It keeps
// waiting as long as ctx allows; cancellation is the only failure.
func (c *MeasurementCell) Acquire(ctx context.Context) (*Guard, error) {
	select {
	case c.sem <- struct{}{}:
		return &Guard{cell: c}, nil
	default:
	}

	select {
	case c.sem <- struct{}{}:
		return &Guard{cell: c}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire takes the guard only if it is free.
func (c *MeasurementCell) TryAcquire() (*Guard, bool) {
	select {
	case c.sem <- struct{}{}:
		return &Guard{cell: c}, true
	default:
		return nil, false
	}
}

// Load reads the cell under the guard.
func (c *MeasurementCell) Load(ctx context.Context) (Ticks, error) {
	g, err := c.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer g.Release()
	return g.Read(), nil
}

// Store writes the cell under the guard.
func (c *MeasurementCell) Store(ctx context.Context, v Ticks) error {
	g, err := c.Acquire(ctx)
	if err != nil {
		return err
	}
	defer g.Release()
	g.Write(v)
	return nil
}

// Read returns the cell value.
func (g *Guard) Read() Ticks {
	g.mustHold()
	return g.cell.value
}

// Write replaces the cell value.
func (g *Guard) Write(v Ticks) {
	g.mustHold()
	g.cell.value = v
}

// Release gives the cell back. Releasing twice panics, like unlocking an
// unlocked sync.Mutex.
func (g *Guard) Release() {
	g.mustHold()
	g.released = true
	<-g.cell.sem
}

func (g *Guard) mustHold() {
	if g == nil || g.released {
		panic("core: measurement cell guard used after release")
	}
}
