package executor_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmon-project/vmon/pkg/executor"
)

func TestDispatchRunsWorkAndCollectsOnce(t *testing.T) {
	e := executor.New(2, 8)
	require.NoError(t, e.Start())
	defer e.Stop(true)

	var collected atomic.Int32
	done := make(chan struct{})
	err := e.Dispatch(
		func(ctx context.Context, payload []byte) int { return 0 },
		func(payload []byte, errCode int, timedOut bool) {
			collected.Add(1)
			assert.Equal(t, 0, errCode)
			assert.False(t, timedOut)
			close(done)
		},
		0, nil,
	)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collect never called")
	}
	assert.Equal(t, int32(1), collected.Load())
}

// TestTimeoutReplacesWorkerWithoutGrowingPool exercises spec.md §8 scenario
// 2: a stuck call times out, the worker slot is replaced, and the pool's
// live worker count never grows past its configured size even though the
// orphaned goroutine is still blocked.
func TestTimeoutReplacesWorkerWithoutGrowingPool(t *testing.T) {
	e := executor.New(1, 8)
	require.NoError(t, e.Start())
	defer e.Stop(false)

	released := make(chan struct{})
	collected := make(chan bool, 1)

	err := e.Dispatch(
		func(ctx context.Context, payload []byte) int {
			<-released // blocks well past the timeout below
			return 0
		},
		func(payload []byte, errCode int, timedOut bool) {
			collected <- timedOut
		},
		10, nil,
	)
	require.NoError(t, err)

	select {
	case timedOut := <-collected:
		assert.True(t, timedOut, "completion should arrive via the timeout path")
	case <-time.After(time.Second):
		t.Fatal("timeout collect never fired")
	}

	// The replacement worker should be usable immediately; live count stays
	// pinned at 1, not 2, even with the orphan still blocked on released.
	assert.Equal(t, 1, e.LiveWorkerCount())

	done2 := make(chan struct{})
	err = e.Dispatch(
		func(ctx context.Context, payload []byte) int { return 0 },
		func(payload []byte, errCode int, timedOut bool) { close(done2) },
		0, nil,
	)
	require.NoError(t, err)
	select {
	case <-done2:
	case <-time.After(time.Second):
		t.Fatal("replacement worker never picked up a new task")
	}

	close(released) // let the orphan's blocked call return; it must not re-enter the loop
}

// TestQueueOverflowRejectsDispatch exercises spec.md §8 scenario 3: once the
// bounded queue is full, Dispatch fails fast rather than blocking the
// caller.
func TestQueueOverflowRejectsDispatch(t *testing.T) {
	e := executor.New(1, 1)
	require.NoError(t, e.Start())
	defer e.Stop(false)

	block := make(chan struct{})
	// Occupy the single worker so the queue backs up.
	require.NoError(t, e.Dispatch(
		func(context.Context, []byte) int { <-block; return 0 },
		func([]byte, int, bool) {},
		0, nil,
	))

	// Give the worker a moment to dequeue the first task so the next Put
	// lands in the now-empty queue slot.
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, e.Dispatch(
		func(context.Context, []byte) int { return 0 },
		func([]byte, int, bool) {},
		0, nil,
	))

	err := e.Dispatch(
		func(context.Context, []byte) int { return 0 },
		func([]byte, int, bool) {},
		0, nil,
	)
	assert.Error(t, err)

	close(block)
}

func TestPayloadTooLargeRejected(t *testing.T) {
	e := executor.New(1, 4)
	require.NoError(t, e.Start())
	defer e.Stop(false)

	big := make([]byte, executor.EmbeddedCapacity+1)
	err := e.Dispatch(func(context.Context, []byte) int { return 0 }, func([]byte, int, bool) {}, 0, big)
	assert.Error(t, err)
}

func TestDispatchBeforeStartFails(t *testing.T) {
	e := executor.New(1, 4)
	err := e.Dispatch(func(context.Context, []byte) int { return 0 }, func([]byte, int, bool) {}, 0, nil)
	assert.Error(t, err)
}

// TestStartStopStartLifecycle exercises spec.md §8 scenario 5.
func TestStartStopStartLifecycle(t *testing.T) {
	e := executor.New(2, 4)
	require.NoError(t, e.Start())
	assert.Error(t, e.Start(), "second Start before Stop must fail")

	e.Stop(true)

	require.NoError(t, e.Start(), "Start after Stop must succeed again")
	e.Stop(true)
}

func TestStopIsIdempotent(t *testing.T) {
	e := executor.New(1, 4)
	require.NoError(t, e.Start())
	e.Stop(true)
	require.NotPanics(t, func() { e.Stop(true) })
}

func TestConcurrentDispatchAllComplete(t *testing.T) {
	e := executor.New(4, 64)
	require.NoError(t, e.Start())
	defer e.Stop(true)

	const n = 50
	var wg sync.WaitGroup
	var completed atomic.Int32
	wg.Add(n)
	for i := 0; i < n; i++ {
		err := e.Dispatch(
			func(context.Context, []byte) int { return 0 },
			func([]byte, int, bool) {
				completed.Add(1)
				wg.Done()
			},
			0, nil,
		)
		require.NoError(t, err)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all dispatched tasks completed")
	}
	assert.Equal(t, int32(n), completed.Load())
}
