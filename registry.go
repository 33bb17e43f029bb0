package taskloop

import (
	"weak"
)

// retrievedFlag is shared between a [Future] and its registry entry so that
// retrieval can still be recorded after the future itself becomes
// unreachable and is collected.
type retrievedFlag struct {
	retrieved bool
}

// futureEntry pins the diagnostic context for one error-finished future
// without keeping the future alive.
type futureEntry struct {
	wp     weak.Pointer[Future]
	flag   *retrievedFlag
	err    error
	label  string
	origin string
}

// futureRegistry drives the unretrieved-error diagnostic: every future that
// finishes with an error is tracked until the error is observed via Result
// or Exception, or until the future is collected still unobserved, at which
// point the diagnostic fires. This is the only fire-and-forget error path in
// the loop, and it exists to catch silently dropped failures.
//
// PERFORMANCE: No locking. Futures finish on the loop goroutine, scavenging
// runs between iterations on the loop goroutine, and Close requires a
// stopped loop, so every access is single-goroutine by construction.
type futureRegistry struct {
	onUnretrieved func(*futureEntry)

	// entries is a FIFO of tracked futures; head marks the scavenge cursor.
	// Survivors are re-appended, and the consumed prefix is compacted away
	// once it dominates the backing array.
	entries []*futureEntry
	head    int
}

func newFutureRegistry(onUnretrieved func(*futureEntry)) *futureRegistry {
	return &futureRegistry{onUnretrieved: onUnretrieved}
}

// track registers an error-finished future and returns the shared retrieval
// flag the future flips when its error is observed.
func (r *futureRegistry) track(f *Future, exc error) *retrievedFlag {
	flag := &retrievedFlag{}
	r.entries = append(r.entries, &futureEntry{
		wp:     weak.Make(f),
		flag:   flag,
		err:    exc,
		label:  f.label,
		origin: f.origin,
	})
	return flag
}

// scavenge examines up to batch tracked entries. Retrieved entries are
// dropped, collected-but-unretrieved entries fire the diagnostic, and live
// unretrieved entries are kept for a later pass. Bounding the batch keeps
// the per-iteration cost flat regardless of how many futures are in flight.
func (r *futureRegistry) scavenge(batch int) {
	pending := len(r.entries) - r.head
	if pending == 0 {
		return
	}
	if batch > pending {
		batch = pending
	}

	for i := 0; i < batch; i++ {
		e := r.entries[r.head]
		r.entries[r.head] = nil
		r.head++

		if e.flag.retrieved {
			continue
		}
		if e.wp.Value() == nil {
			r.onUnretrieved(e)
			continue
		}
		r.entries = append(r.entries, e)
	}

	r.compact()
}

// compact reclaims the consumed prefix when it dominates the backing array.
func (r *futureRegistry) compact() {
	if r.head == len(r.entries) {
		r.entries = r.entries[:0]
		r.head = 0
		return
	}
	if r.head > 64 && r.head*4 >= len(r.entries)*3 {
		r.entries = append(r.entries[:0], r.entries[r.head:]...)
		r.head = 0
	}
}

// sweep is the shutdown pass: it fires the diagnostic for every entry whose
// future was already collected unobserved, then discards the registry's
// contents. Errors still held by reachable futures stay retrievable by the
// caller and are not reported.
func (r *futureRegistry) sweep() {
	for _, e := range r.entries[r.head:] {
		if e == nil || e.flag.retrieved {
			continue
		}
		if e.wp.Value() == nil {
			r.onUnretrieved(e)
		}
	}
	r.entries = nil
	r.head = 0
}

// size reports how many entries are currently tracked.
func (r *futureRegistry) size() int {
	return len(r.entries) - r.head
}
