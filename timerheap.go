package taskloop

// timerHeap is a min-heap of timer handles ordered by deadline, with the
// creation sequence breaking ties so equal deadlines fire in FIFO order.
//
// Cancellation is lazy: cancelled handles stay in the heap and are skipped
// when popped. Only the loop goroutine touches the heap.
type timerHeap []*TimerHandle

// Implement heap.Interface for timerHeap
func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*TimerHandle))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// peek returns the earliest-deadline handle without removing it, or nil if
// the heap is empty. Cancelled handles still count until popped.
func (h timerHeap) peek() *TimerHandle {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}
