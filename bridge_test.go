package taskloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSoonThreadsafeWakesIdleLoop(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	join := startLoop(t, l)
	defer join()

	// Give the loop time to park in poll with nothing scheduled.
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 10; i++ {
		ran := make(chan struct{})
		_, err := l.CallSoonThreadsafe(func() { close(ran) })
		require.NoError(t, err)
		select {
		case <-ran:
		case <-time.After(5 * time.Second):
			t.Fatalf("submission %d did not wake the loop", i)
		}
	}
}

func TestCallSoonThreadsafeConcurrent(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	join := startLoop(t, l)

	const (
		submitters   = 4
		perSubmitter = 25
		total        = submitters * perSubmitter
	)
	var count int
	allDone := make(chan struct{})

	var wg sync.WaitGroup
	for g := 0; g < submitters; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSubmitter; i++ {
				_, err := l.CallSoonThreadsafe(func() {
					count++
					if count == total {
						close(allDone)
					}
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	select {
	case <-allDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for all submissions to run")
	}
	join()

	assert.Equal(t, total, count)
}

// TestCallSoonThreadsafeOrder verifies submissions from a single goroutine
// run in submission order.
func TestCallSoonThreadsafeOrder(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	join := startLoop(t, l)

	const n = 20
	var order []int
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		_, err := l.CallSoonThreadsafe(func() {
			order = append(order, i)
			if len(order) == n {
				close(done)
			}
		})
		require.NoError(t, err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for submissions")
	}
	join()

	require.Len(t, order, n)
	for i, got := range order {
		assert.Equal(t, i, got, "submission order not preserved")
	}
}

func TestCallSoonThreadsafeClosedLoop(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = l.CallSoonThreadsafe(func() {})
	assert.ErrorIs(t, err, ErrLoopClosed)
}

// TestCallSoonThreadsafeStoppedLoop verifies work submitted while the loop is
// stopped is retained and runs on the next RunForever.
func TestCallSoonThreadsafeStoppedLoop(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var ran bool
	_, err = l.CallSoonThreadsafe(func() {
		ran = true
		l.Stop()
	})
	require.NoError(t, err)

	require.NoError(t, l.RunForever())
	assert.True(t, ran, "retained submission did not run")
}

func TestRunCoroutineThreadsafe(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	join := startLoop(t, l)
	defer join()

	fch := make(chan *Future, 1)
	step := 0
	p, err := l.RunCoroutineThreadsafe(CoroutineFunc(func(in Result, inErr error) Step {
		step++
		if step == 1 {
			f, err := l.CreateFuture()
			if err != nil {
				return Throw(err)
			}
			fch <- f
			return Await(f)
		}
		if inErr != nil {
			return Throw(inErr)
		}
		return Return(in)
	}))
	require.NoError(t, err)

	// The task cannot complete before we resolve its future, so the proxy
	// is necessarily still pending here.
	_, err = p.Result()
	assert.True(t, IsInvalidState(err), "pending proxy Result = %v", err)

	var f *Future
	select {
	case f = <-fch:
	case <-time.After(5 * time.Second):
		t.Fatal("coroutine never reached its await")
	}

	_, err = l.CallSoonThreadsafe(func() {
		if err := f.SetResult(21); err != nil {
			t.Errorf("SetResult failed: %v", err)
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 21, v)

	select {
	case <-p.Done():
	default:
		t.Error("Done channel open after completion")
	}

	v, err = p.Result()
	require.NoError(t, err)
	assert.Equal(t, 21, v)
}

func TestRunCoroutineThreadsafeNil(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	_, err = l.RunCoroutineThreadsafe(nil)
	assert.ErrorContains(t, err, "nil coroutine")
}

func TestRunCoroutineThreadsafeClosedLoop(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = l.RunCoroutineThreadsafe(CoroutineFunc(func(Result, error) Step {
		return Return(nil)
	}))
	assert.ErrorIs(t, err, ErrLoopClosed)
}

// TestThreadsafeFutureCancelBeforeBind cancels the proxy before the loop has
// had a chance to create the task.
func TestThreadsafeFutureCancelBeforeBind(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	p, err := l.RunCoroutineThreadsafe(CoroutineFunc(func(in Result, inErr error) Step {
		if inErr != nil {
			return Throw(inErr)
		}
		return Return(in)
	}))
	require.NoError(t, err)

	// The loop is not running, so the task does not exist yet.
	assert.True(t, p.Cancel())

	go func() {
		<-p.Done()
		l.Stop()
	}()
	require.NoError(t, l.RunForever())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = p.Wait(ctx)
	assert.True(t, IsCancelled(err), "outcome = %v, want cancelled", err)

	assert.False(t, p.Cancel(), "Cancel after completion")
}

func TestThreadsafeFutureCancelAfterBind(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	join := startLoop(t, l)
	defer join()

	stepped := make(chan struct{})
	step := 0
	p, err := l.RunCoroutineThreadsafe(CoroutineFunc(func(in Result, inErr error) Step {
		step++
		if step == 1 {
			f, err := l.CreateFuture()
			if err != nil {
				return Throw(err)
			}
			close(stepped)
			return Await(f)
		}
		if inErr != nil {
			return Throw(inErr)
		}
		return Return(in)
	}))
	require.NoError(t, err)

	select {
	case <-stepped:
	case <-time.After(5 * time.Second):
		t.Fatal("coroutine never started")
	}

	assert.True(t, p.Cancel())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = p.Wait(ctx)
	assert.True(t, IsCancelled(err), "outcome = %v, want cancelled", err)
}
