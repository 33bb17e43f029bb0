package taskloop

import (
	"testing"
)

func TestIngressQueueFIFOAcrossChunks(t *testing.T) {
	var q ingressQueue

	const n = chunkSize*3 + 7
	handles := make([]*Handle, n)
	for i := range handles {
		handles[i] = &Handle{seq: uint64(i)}
		q.push(handles[i])
	}
	if q.len() != n {
		t.Fatalf("len = %d, want %d", q.len(), n)
	}

	for i := 0; i < n; i++ {
		h, ok := q.pop()
		if !ok {
			t.Fatalf("pop %d returned empty", i)
		}
		if h != handles[i] {
			t.Fatalf("pop %d = seq %d, want %d", i, h.seq, handles[i].seq)
		}
	}

	if q.len() != 0 {
		t.Errorf("len = %d after drain, want 0", q.len())
	}
	if _, ok := q.pop(); ok {
		t.Error("pop on drained queue returned a handle")
	}
}

func TestIngressQueueEmptyPop(t *testing.T) {
	var q ingressQueue
	if h, ok := q.pop(); ok || h != nil {
		t.Fatalf("pop on fresh queue = (%v, %t), want (nil, false)", h, ok)
	}
	if q.len() != 0 {
		t.Errorf("len = %d, want 0", q.len())
	}
}

func TestIngressQueueInterleavedReuse(t *testing.T) {
	var q ingressQueue

	// Cycle pushes and pops through several chunk lifetimes so exhausted
	// chunks are recycled through the pool.
	seq := uint64(0)
	for round := 0; round < 4; round++ {
		batch := make([]*Handle, chunkSize+3)
		for i := range batch {
			seq++
			batch[i] = &Handle{seq: seq}
			q.push(batch[i])
		}
		for i := range batch {
			h, ok := q.pop()
			if !ok || h != batch[i] {
				t.Fatalf("round %d pop %d = (%v, %t), want %v", round, i, h, ok, batch[i])
			}
		}
		if q.len() != 0 {
			t.Fatalf("round %d: len = %d after drain", round, q.len())
		}
	}
}
