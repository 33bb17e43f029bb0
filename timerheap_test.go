package taskloop

import (
	"container/heap"
	"math/rand"
	"testing"
	"time"
)

func TestTimerHeapPopsByDeadline(t *testing.T) {
	base := time.Now()
	h := make(timerHeap, 0)

	offsets := []int{50, 10, 40, 20, 30}
	for i, off := range offsets {
		heap.Push(&h, &TimerHandle{
			Handle: Handle{seq: uint64(i)},
			when:   base.Add(time.Duration(off) * time.Millisecond),
		})
	}

	var got []time.Time
	for h.Len() > 0 {
		got = append(got, heap.Pop(&h).(*TimerHandle).when)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Before(got[i-1]) {
			t.Fatalf("pop %d (%v) before pop %d (%v)", i, got[i], i-1, got[i-1])
		}
	}
}

func TestTimerHeapEqualDeadlineUsesSeq(t *testing.T) {
	when := time.Now()
	h := make(timerHeap, 0)

	perm := rand.New(rand.NewSource(1)).Perm(8)
	for _, seq := range perm {
		heap.Push(&h, &TimerHandle{Handle: Handle{seq: uint64(seq)}, when: when})
	}

	for want := uint64(0); h.Len() > 0; want++ {
		th := heap.Pop(&h).(*TimerHandle)
		if th.seq != want {
			t.Fatalf("popped seq %d, want %d", th.seq, want)
		}
	}
}

func TestTimerHeapPeek(t *testing.T) {
	h := make(timerHeap, 0)
	if h.peek() != nil {
		t.Fatal("peek on empty heap returned non-nil")
	}

	early := &TimerHandle{Handle: Handle{seq: 2}, when: time.Now()}
	late := &TimerHandle{Handle: Handle{seq: 1}, when: time.Now().Add(time.Hour)}
	heap.Push(&h, late)
	heap.Push(&h, early)

	if got := h.peek(); got != early {
		t.Errorf("peek = %v, want earliest", got)
	}
	if h.Len() != 2 {
		t.Errorf("peek consumed an element: len = %d", h.Len())
	}
}

func TestReadyQueueFIFO(t *testing.T) {
	var q readyQueue
	if q.pop() != nil {
		t.Fatal("pop on empty queue returned non-nil")
	}

	handles := make([]*Handle, 5)
	for i := range handles {
		handles[i] = &Handle{seq: uint64(i)}
		q.push(handles[i])
	}
	if q.len() != 5 {
		t.Fatalf("len = %d, want 5", q.len())
	}

	for i := range handles {
		if got := q.pop(); got != handles[i] {
			t.Fatalf("pop %d = %v, want %v", i, got, handles[i])
		}
	}
	if q.len() != 0 || q.pop() != nil {
		t.Error("queue not empty after draining")
	}

	// Reuses the backing array after a full drain.
	q.push(handles[0])
	if q.len() != 1 || q.pop() != handles[0] {
		t.Error("queue broken after drain and reuse")
	}
}

func TestReadyQueueInterleaved(t *testing.T) {
	var q readyQueue
	a, b, c := &Handle{seq: 1}, &Handle{seq: 2}, &Handle{seq: 3}

	q.push(a)
	q.push(b)
	if q.pop() != a {
		t.Fatal("expected a first")
	}
	q.push(c)
	if q.len() != 2 {
		t.Fatalf("len = %d, want 2", q.len())
	}
	if q.pop() != b || q.pop() != c {
		t.Fatal("interleaved pops out of order")
	}
}
