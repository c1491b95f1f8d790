// Package scheduler implements the timer service used to enforce per-task
// timeouts and, optionally, periodic sampling. It is grounded on
// _examples/original_source/src/scheduler.c and lib/scheduler.h: the
// original runs a glib GMainLoop on a dedicated thread and arms
// g_timeout_source_new callbacks on it; here a single goroutine owns a
// min-heap-free loop built on time.Timer (the original's "always standalone"
// mode — the original's embedded/non-standalone mode, which let the
// scheduler piggy-back on a host application's own glib main loop, was a
// workaround for the C ecosystem's callback-based main loops and has no
// idiomatic Go analogue worth keeping; see DESIGN.md's pkg/scheduler entry).
package scheduler

import (
	"sync"
	"time"
)

// Func is a scheduled callback. If it returns true, the scheduler re-arms
// it with the same delay (periodic behavior); otherwise the timer is
// consumed.
type Func func() bool

// ID identifies a scheduled callback so it can be removed.
type ID uint64

type entry struct {
	id      ID
	delay   time.Duration
	fn      Func
	timer   *time.Timer
	removed bool
}

// Scheduler runs callbacks on its own goroutine, serialized: two callbacks
// never run concurrently with each other. There is exactly one Scheduler
// per Executor, matching spec.md §4.2.
type Scheduler struct {
	mu      sync.Mutex
	entries map[ID]*entry
	nextID  ID
	fire    chan *entry
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New constructs a Scheduler. Call Start before Add.
func New() *Scheduler {
	return &Scheduler{
		entries: make(map[ID]*entry),
		fire:    make(chan *entry, 16),
		done:    make(chan struct{}),
	}
}

// Start launches the scheduler's dispatch loop on its own goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
}

// loop is the scheduler's dedicated goroutine. Callbacks fired by
// time.AfterFunc land on the fire channel and are executed here, one at a
// time, so two timer callbacks never race each other — mirroring the
// single GMainLoop thread in the original.
func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case e := <-s.fire:
			s.runEntry(e)
		case <-s.done:
			return
		}
	}
}

func (s *Scheduler) runEntry(e *entry) {
	s.mu.Lock()
	if e.removed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	again := e.fn()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.removed {
		return
	}
	if again {
		e.timer = time.AfterFunc(e.delay, func() { s.enqueue(e) })
		return
	}
	delete(s.entries, e.id)
}

func (s *Scheduler) enqueue(e *entry) {
	select {
	case s.fire <- e:
	case <-s.done:
	}
}

// Add schedules fn to run no earlier than delay hence, returning an ID
// that can be passed to Remove. delay of 0 or less fires as soon as the
// loop is free.
func (s *Scheduler) Add(delay time.Duration, fn Func) ID {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	e := &entry{id: id, delay: delay, fn: fn}
	s.entries[id] = e
	s.mu.Unlock()

	e.timer = time.AfterFunc(delay, func() { s.enqueue(e) })
	return id
}

// Remove cancels a scheduled callback. It is safe to call after the timer
// has already fired (a no-op in that case) or with an unknown id.
func (s *Scheduler) Remove(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.removed = true
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.entries, id)
}

// Stop shuts the scheduler loop down. Pending callbacks are dropped,
// matching scheduler_stop's semantics. If wait is true, Stop blocks until
// the loop goroutine has exited.
func (s *Scheduler) Stop(wait bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, e := range s.entries {
		e.removed = true
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	s.entries = make(map[ID]*entry)
	s.mu.Unlock()

	close(s.done)
	if wait {
		s.wg.Wait()
	}
}
