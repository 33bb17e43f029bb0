package taskloop

// readyQueue is the FIFO queue of handles due to run "as soon as possible".
// It is the loop's single dispatch point: timers, I/O readiness, and
// done-callbacks all funnel through it.
//
// Only the loop goroutine touches the queue; cross-goroutine submission
// goes through the ingress (see ingress.go) and is transferred in at the
// start of each iteration.
type readyQueue struct {
	handles []*Handle
	head    int
}

// push appends a handle to the tail.
func (q *readyQueue) push(h *Handle) {
	q.handles = append(q.handles, h)
}

// pop removes and returns the head handle, or nil if the queue is empty.
func (q *readyQueue) pop() *Handle {
	if q.head >= len(q.handles) {
		return nil
	}
	h := q.handles[q.head]
	q.handles[q.head] = nil // release the reference
	q.head++
	if q.head == len(q.handles) {
		// Fully drained: reset cursors, reuse capacity.
		q.handles = q.handles[:0]
		q.head = 0
	}
	return h
}

// len returns the number of queued handles, including cancelled ones.
func (q *readyQueue) len() int {
	return len(q.handles) - q.head
}
