// Package executor implements the bounded worker pool that runs blocking
// hypervisor calls without ever letting one slow domain stall the others. It
// is grounded on _examples/original_source/src/executor.c and
// lib/executor.h: a fixed number of worker goroutines drain a bounded queue
// (pkg/queue), and a per-task timer (pkg/scheduler) detects a worker stuck
// past its deadline. Per spec.md §4.3/§9, a timed-out call is never
// canceled — only abandoned: the worker slot is replaced by a fresh
// goroutine, and the orphan goroutine exits quietly once its blocked call
// eventually returns.
package executor

import (
	"context"
	"sync"

	"github.com/vmon-project/vmon/pkg/queue"
	"github.com/vmon-project/vmon/pkg/scheduler"
	"github.com/vmon-project/vmon/pkg/vmonerr"
)

// Executor owns a fixed-size worker pool, a bounded task queue, and the
// timeout scheduler. There is one Executor per running daemon instance,
// matching spec.md §3.
type Executor struct {
	mu          sync.Mutex
	workerCount int
	queueCap    int

	queue   *queue.Ring[*TaskDescriptor]
	sched   *scheduler.Scheduler
	workers map[int]*worker
	nextID  int

	running bool
}

// New constructs an Executor with workerCount persistent workers and a task
// queue bounded at queueCap entries. Call Start before Dispatch.
func New(workerCount, queueCap int) *Executor {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Executor{
		workerCount: workerCount,
		queueCap:    queueCap,
		queue:       queue.New[*TaskDescriptor](queueCap),
		sched:       scheduler.New(),
		workers:     make(map[int]*worker),
	}
}

// Start spawns the worker pool and the timeout scheduler. Calling Start a
// second time without an intervening Stop returns ErrAlreadyStarted,
// mirroring executor_start's ALREADY_STARTED code.
func (e *Executor) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return vmonerr.ErrAlreadyStarted
	}
	e.sched.Start()
	for i := 0; i < e.workerCount; i++ {
		e.spawnLocked(e.nextID)
		e.nextID++
	}
	e.running = true
	return nil
}

// spawnLocked creates and launches a worker occupying slot id. Callers must
// hold e.mu.
func (e *Executor) spawnLocked(id int) {
	w := newWorker(id, e, e.sched)
	e.workers[id] = w
	go w.run()
}

// replace is invoked from the scheduler goroutine when a worker's task
// times out. It spawns a fresh worker to take over the slot; the old
// worker's goroutine is left to exit on its own once its blocked call
// returns (see worker.run).
func (e *Executor) replace(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.spawnLocked(id)
}

// LiveWorkerCount returns the number of worker slots currently occupied by a
// non-superseded goroutine — always workerCount while the Executor is
// running, used by tests to assert the pool never silently grows or shrinks
// across a timeout-triggered replacement.
func (e *Executor) LiveWorkerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.workers)
}

// Dispatch enqueues a task for execution by the worker pool. work performs
// the blocking call; collect is invoked exactly once, either by a worker on
// normal completion or by the scheduler on timeout. timeoutMS of 0 disables
// the per-task timeout. payload must fit within EmbeddedCapacity or
// Dispatch returns ErrTooMuchData. If the queue is full, Dispatch returns
// ErrTooManyTasks rather than blocking — matching TOO_MANY_TASKS in
// executor.h.
func (e *Executor) Dispatch(work WorkFunc, collect CollectFunc, timeoutMS int, payload []byte) error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return vmonerr.ErrNotRunning
	}

	td, err := newTaskDescriptor(work, collect, timeoutMS, payload)
	if err != nil {
		return err
	}
	if !e.queue.Put(td) {
		return vmonerr.ErrTooManyTasks
	}
	return nil
}

// Stop drains the pool: one poison-pill task is enqueued per live worker so
// each exits its loop cleanly, the scheduler is stopped (dropping any
// pending timeouts — nothing is left in flight to fire them against, since
// the pool is shutting down), and, if wait is true, Stop blocks until every
// worker goroutine has returned. Calling Stop when not running is a no-op,
// mirroring executor_stop's tolerance of a double-stop.
//
// Stop enqueues each poison pill with a single, non-retried Put, exactly as
// executor_stop does in the original — a full queue at shutdown time can
// silently fail to deliver a pill to every worker, same latent limitation
// as the C implementation, not one this port introduces.
func (e *Executor) Stop(wait bool) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	workers := make([]*worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()

	for range workers {
		pill := &TaskDescriptor{
			work:    func(context.Context, []byte) int { return 0 },
			collect: func([]byte, int, bool) {},
			poison:  true,
		}
		e.queue.Put(pill)
	}

	e.sched.Stop(wait)

	if wait {
		for _, w := range workers {
			<-w.done
		}
	}

	e.mu.Lock()
	e.workers = make(map[int]*worker)
	e.sched = scheduler.New() // a stopped Scheduler cannot be restarted
	e.mu.Unlock()
}
