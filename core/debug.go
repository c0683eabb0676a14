package core

import "sync"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a timing-critical event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Task      uint8  // Task that recorded the event
	Clock     Ticks  // System clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtTaskWake    = 1 // Periodic task body started
	EvtCellWrite   = 2 // Measurement published; v1=ticks
	EvtCellRead    = 3 // Measurement consumed; v1=ticks
	EvtDecision    = 4 // Motor command issued; v1=command, v2=ticks
	EvtBlink       = 5 // Indicator pulse; v1=next delay in ms
	EvtEchoTimeout = 6 // Echo line never answered; v1=failure count
	EvtOverrun     = 7 // Task body ran past its next wake; v1=ticks late
)

// Task identifiers used in timing events.
const (
	TaskSampler   = 1
	TaskConsumer  = 2
	TaskIndicator = 3
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	debugMu sync.RWMutex

	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, slog, etc.
func SetDebugWriter(writer DebugWriter) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
// Useful for benchmarks where debug output would affect timing
func SetDebugEnabled(enabled bool) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugMu.Lock()
	defer debugMu.Unlock()
	if debugChan != nil {
		return
	}
	debugChan = make(chan string, 16) // Buffer 16 messages
	go debugOutputWorker(debugChan)
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker(ch <-chan string) {
	for msg := range ch {
		debugMu.RLock()
		w := debugPrintln
		debugMu.RUnlock()
		if w != nil {
			w(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
// Blocks if debug is enabled (use DebugAsync for non-blocking)
func DebugPrintln(msg string) {
	debugMu.RLock()
	w, enabled := debugPrintln, debugEnabled
	debugMu.RUnlock()
	if enabled && w != nil {
		w(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Falls back to DebugPrintln before InitAsyncDebug; drops the message if
// the queue is full.
func DebugAsync(msg string) {
	debugMu.RLock()
	ch, enabled := debugChan, debugEnabled
	debugMu.RUnlock()
	if !enabled {
		return
	}
	if ch == nil {
		DebugPrintln(msg)
		return
	}
	select {
	case ch <- msg:
	default:
		// Channel full, drop message (non-blocking)
	}
}

// Tracer keeps the last TimingRingSize timing events.
type Tracer struct {
	mu   sync.Mutex
	ring [TimingRingSize]TimingEvent
	head uint8
	n    uint32
}

// Record captures a timing event in the ring buffer.
// A nil Tracer discards events.
func (t *Tracer) Record(eventType, task uint8, clock Ticks, value1, value2 uint32) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.ring[t.head] = TimingEvent{
		EventType: eventType,
		Task:      task,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	t.head = (t.head + 1) % TimingRingSize
	t.n++
	t.mu.Unlock()
}

// Total returns how many events were ever recorded.
func (t *Tracer) Total() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

// Events returns the buffered events, oldest first.
func (t *Tracer) Events() []TimingEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TimingEvent, 0, TimingRingSize)
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := t.ring[(t.head+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// Dump outputs the ring buffer through w (call on shutdown/error)
func (t *Tracer) Dump(w DebugWriter) {
	if w == nil {
		return
	}

	w("[TIMING] === Timing Ring Dump ===")
	w("[TIMING] Total events: " + Utoa(t.Total()))
	for _, evt := range t.Events() {
		w("[TIMING] " + EventName(evt.EventType) +
			" " + KV("task", uint32(evt.Task)) +
			" " + KV("clock", uint32(evt.Clock)) +
			" " + KV("v1", evt.Value1) +
			" " + KV("v2", evt.Value2))
	}
	w("[TIMING] === End Dump ===")
}

// Clear empties the ring buffer.
func (t *Tracer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring = [TimingRingSize]TimingEvent{}
	t.head = 0
	t.n = 0
}

// EventName returns the dump label for an event type.
func EventName(eventType uint8) string {
	switch eventType {
	case EvtTaskWake:
		return "TASK_WAKE"
	case EvtCellWrite:
		return "CELL_WRITE"
	case EvtCellRead:
		return "CELL_READ"
	case EvtDecision:
		return "DECISION"
	case EvtBlink:
		return "BLINK"
	case EvtEchoTimeout:
		return "ECHO_TIMEOUT!"
	case EvtOverrun:
		return "OVERRUN!"
	default:
		return "UNKNOWN"
	}
}
