package robot

import (
	"context"
	"sync"
	"testing"
	"time"

	"sonarbot/core"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// runClock advances clk one tick at a time in the background until the
// test ends, standing in for the tick interrupt.
func runClock(t *testing.T, clk *core.SimClock) {
	t.Helper()
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-done:
				return
			default:
			}
			clk.Advance(1)
			time.Sleep(20 * time.Microsecond)
		}
	}()
	t.Cleanup(func() {
		close(done)
		<-stopped
	})
}

type moverFunc func(Command) error

func (f moverFunc) Move(c Command) error { return f(c) }

type recordingReporter struct {
	mu        sync.Mutex
	samples   []Sample
	decisions []Decision
	blinks    []Blink
}

func (r *recordingReporter) Sample(s Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func (r *recordingReporter) Decision(d Decision) {
	r.mu.Lock()
	r.decisions = append(r.decisions, d)
	r.mu.Unlock()
}

func (r *recordingReporter) Blink(b Blink) {
	r.mu.Lock()
	r.blinks = append(r.blinks, b)
	r.mu.Unlock()
}

func (r *recordingReporter) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples), len(r.decisions), len(r.blinks)
}
