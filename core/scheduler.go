package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime Ticks
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// timerQueue is a singly linked list of timers sorted by WakeTime.
// Callers provide the locking.
type timerQueue struct {
	head *Timer
}

// insert adds t in sorted order by WakeTime; timers with equal wake times
// fire in insertion order.
func (q *timerQueue) insert(t *Timer) {
	if q.head == nil || int32(t.WakeTime-q.head.WakeTime) < 0 {
		t.Next = q.head
		q.head = t
		return
	}

	current := q.head
	for current.Next != nil && int32(current.Next.WakeTime-t.WakeTime) <= 0 {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// remove unlinks t and reports whether it was queued.
func (q *timerQueue) remove(t *Timer) bool {
	if q.head == nil {
		return false
	}
	if q.head == t {
		q.head = t.Next
		t.Next = nil
		return true
	}
	for current := q.head; current.Next != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return true
		}
	}
	return false
}

// len returns the number of queued timers.
func (q *timerQueue) len() int {
	n := 0
	for t := q.head; t != nil; t = t.Next {
		n++
	}
	return n
}

// dispatch runs every timer due at now. A handler returning SF_RESCHEDULE
// is queued again at the WakeTime it set.
func (q *timerQueue) dispatch(now Ticks) int {
	fired := 0
	for q.head != nil && Due(now, q.head.WakeTime) {
		timer := q.head
		q.head = timer.Next
		timer.Next = nil // Clear Next pointer to avoid circular references

		fired++
		if timer.Handler(timer) == SF_RESCHEDULE {
			q.insert(timer)
		}
	}
	return fired
}
