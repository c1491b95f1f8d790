package executor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vmon-project/vmon/pkg/scheduler"
)

// worker is one pool slot, grounded on the Worker struct in
// _examples/original_source/src/executor.c. id is stable across
// replacement; the goroutine underneath it is not — a worker that is
// replaced after a timeout keeps running as an orphan (§4.3) until its
// blocked work() call returns, then exits silently without re-entering the
// dequeue loop.
type worker struct {
	id    int
	exec  *Executor
	sched *scheduler.Scheduler
	done  chan struct{}

	// superseded is set by the timeout path the moment it abandons this
	// worker's slot. The orphan checks it after its blocked work() call
	// finally returns so it never loops back onto the queue again — that is
	// what keeps "live worker count" pinned at workerCount instead of
	// growing by one every time a timeout fires.
	superseded atomic.Bool
}

func newWorker(id int, exec *Executor, sched *scheduler.Scheduler) *worker {
	return &worker{
		id:    id,
		exec:  exec,
		sched: sched,
		done:  make(chan struct{}),
	}
}

// run is the worker's state machine: IDLE -> RUNNING -> (ARMED) -> COLLECT
// -> IDLE, as described in spec.md §4.3.
func (w *worker) run() {
	defer close(w.done)

	for {
		td := w.exec.queue.Get()

		w.runTask(td)

		if td.poison {
			return
		}
		if w.superseded.Load() {
			// This goroutine was replaced while blocked in work(); it must
			// not keep consuming tasks meant for its successor.
			return
		}
	}
}

func (w *worker) runTask(td *TaskDescriptor) {
	var timerID scheduler.ID
	armed := false

	// ctx carries the cancellation signal spec.md §9 requires: onTimeout
	// cancels it the moment the deadline fires, so a context-aware
	// hypervisor call can abort early. The executor itself never waits on
	// ctx — work() may ignore cancellation entirely and keep running as an
	// orphan, which is exactly the scenario onTimeout/replace exists to
	// handle.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if td.timeoutMS > 0 {
		timerID = w.sched.Add(time.Duration(td.timeoutMS)*time.Millisecond, func() bool {
			w.onTimeout(td, cancel)
			return false
		})
		armed = true
	}

	errCode := td.work(ctx, td.Payload())

	if armed && !td.discarded.Load() {
		w.sched.Remove(timerID)
	}

	if td.claim() {
		td.collect(td.Payload(), errCode, false)
	}
}

// onTimeout runs on the scheduler's dedicated goroutine, never the worker's.
// It cancels the task's context, declares the worker slot lost, replaces
// it, and delivers the timeout completion — exactly one of this or the
// worker's own post-work path in runTask will win the claim.
func (w *worker) onTimeout(td *TaskDescriptor, cancel context.CancelFunc) {
	cancel()
	td.discarded.Store(true)
	w.superseded.Store(true)
	w.exec.replace(w.id)

	if td.claim() {
		td.collect(td.Payload(), 0, true)
	}
}
