package taskloop

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
)

// waitForRunning spins until the loop reaches StateRunning with a 5-second
// timeout guard.
func waitForRunning(t *testing.T, loop *Loop) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for loop.State() != StateRunning {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for loop to start running")
		default:
			runtime.Gosched()
		}
	}
}

// startLoop runs the loop on a background goroutine and returns a join
// function that stops the loop and waits for RunForever to return. While the
// loop runs in the background, the test goroutine must only use the
// threadsafe entry points (CallSoonThreadsafe, RunCoroutineThreadsafe, Stop).
func startLoop(t *testing.T, l *Loop) (join func()) {
	t.Helper()
	runDone := make(chan error, 1)
	go func() { runDone <- l.RunForever() }()
	waitForRunning(t, l)
	return func() {
		t.Helper()
		l.Stop()
		select {
		case err := <-runDone:
			if err != nil {
				t.Fatalf("RunForever returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for loop to stop")
		}
	}
}

// testEvent is a minimal logiface.Event implementation for testing the
// structured logging paths. Fields are recorded as written; the log message
// arrives under the "msg" key via the logiface fallback.
type testEvent struct {
	logiface.UnimplementedEvent
	level  logiface.Level
	fields map[string]any
}

func (e *testEvent) Level() logiface.Level { return e.level }

func (e *testEvent) AddField(key string, val any) {
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	e.fields[key] = val
}

// testEventFactory creates testEvent instances.
type testEventFactory struct{}

func (f *testEventFactory) NewEvent(level logiface.Level) *testEvent {
	return &testEvent{level: level}
}

// testEventWriter collects written events behind a mutex so tests can read
// them after the loop goroutine stops.
type testEventWriter struct {
	mu     sync.Mutex
	events []*testEvent
}

func (w *testEventWriter) Write(event *testEvent) error {
	w.mu.Lock()
	w.events = append(w.events, event)
	w.mu.Unlock()
	return nil
}

// snapshot copies out the events written so far.
func (w *testEventWriter) snapshot() []*testEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*testEvent, len(w.events))
	copy(out, w.events)
	return out
}

// newTestLogger builds a generic logiface logger backed by an in-memory
// writer, mirroring how WithLogger consumers wire real backends.
func newTestLogger() (*logiface.Logger[logiface.Event], *testEventWriter) {
	writer := &testEventWriter{}
	typed := logiface.New[*testEvent](
		logiface.WithEventFactory[*testEvent](&testEventFactory{}),
		logiface.WithWriter[*testEvent](writer),
	)
	return typed.Logger(), writer
}
