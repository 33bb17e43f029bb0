package taskloop

import (
	"sync"
)

const (
	// chunkSize is the number of handles per node in the ingress linked list.
	// 128 slots * 8 bytes/slot + overhead = ~1KB per chunk.
	chunkSize = 128
)

// ingressQueue is a chunked linked-list queue carrying handles submitted
// from other goroutines via [Loop.CallSoonThreadsafe]. The loop transfers
// its contents into the ready queue at the start of each iteration.
//
// Thread Safety: this struct is NOT thread-safe on its own.
// The caller must hold the bridge mutex (Loop.ingressMu) around every call;
// that mutex is the single point of true mutual exclusion in the loop.
//
// Performance rationale:
// - Fixed-size arrays (chunkSize) provide cache locality and amortize allocations.
// - sync.Pool chunk recycling prevents GC thrashing under high throughput.
type ingressQueue struct { // betteralign:ignore
	head   *chunk
	tail   *chunk
	length int
}

// chunkPool prevents GC thrashing under high load.
var chunkPool = sync.Pool{
	New: func() any {
		return &chunk{}
	},
}

// chunk is a fixed-size node in the chunked linked-list.
// It uses readPos/pos cursors for O(1) push/pop without shifting.
type chunk struct {
	handles [chunkSize]*Handle
	next    *chunk
	readPos int // First unread slot (index into handles)
	pos     int // First unused slot / writePos (index into handles)
}

// newChunk creates and returns a new chunk from the pool.
func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	// Reset fields for reuse as the chunk may have been returned with stale data
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

// returnChunk returns an exhausted chunk to the pool.
// Slots are cleared so the pool does not retain handle closures.
func returnChunk(c *chunk) {
	for i := 0; i < c.pos; i++ {
		c.handles[i] = nil
	}
	c.pos = 0
	c.readPos = 0
	c.next = nil
	chunkPool.Put(c)
}

// push adds a handle to the queue.
//
// CALLER MUST HOLD THE BRIDGE MUTEX.
func (q *ingressQueue) push(h *Handle) {
	if q.tail == nil {
		q.tail = newChunk()
		q.head = q.tail
	}

	if q.tail.pos == len(q.tail.handles) {
		newTail := newChunk()
		q.tail.next = newTail
		q.tail = newTail
	}

	q.tail.handles[q.tail.pos] = h
	q.tail.pos++
	q.length++
}

// pop removes and returns a handle.
//
// Returns false if the queue is empty.
//
// CALLER MUST HOLD THE BRIDGE MUTEX.
func (q *ingressQueue) pop() (*Handle, bool) {
	if q.head == nil {
		return nil, false
	}

	// Check if current chunk is exhausted (readPos == pos means all written slots read)
	if q.head.readPos >= q.head.pos {
		// If this is the only chunk, queue is empty - reset cursors for reuse
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
			return nil, false
		}
		// Move to next chunk and return exhausted one to pool
		oldHead := q.head
		q.head = q.head.next
		returnChunk(oldHead)
	}

	// Double-check after potential chunk advancement
	if q.head.readPos >= q.head.pos {
		return nil, false
	}

	// O(1) read at readPos, then increment
	h := q.head.handles[q.head.readPos]
	// Zero out popped slot for GC safety
	q.head.handles[q.head.readPos] = nil
	q.head.readPos++
	q.length--

	// If chunk is now exhausted, free it or reset cursors
	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
			return h, true
		}
		oldHead := q.head
		q.head = q.head.next
		returnChunk(oldHead)
	}

	return h, true
}

// len returns the queue length.
//
// CALLER MUST HOLD THE BRIDGE MUTEX.
func (q *ingressQueue) len() int {
	return q.length
}
