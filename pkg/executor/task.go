package executor

import (
	"context"
	"sync/atomic"

	"github.com/vmon-project/vmon/pkg/vmonerr"
)

const (
	// taskDataSize mirrors TASK_DATA_SIZE from
	// _examples/original_source/lib/executor.h: the total footprint
	// budgeted for one queued task, header plus embedded payload.
	taskDataSize = 128
	// taskHeaderSize approximates the bookkeeping a TaskDescriptor carries
	// before any payload bytes: two closures, a timeout, a size, and the
	// two completion-tracking atomics. The original computed this as
	// sizeof(TaskBaseData) + sizeof(TaskUserData); Go's layout differs but
	// the intent — bound the embedded payload so one task never forces a
	// per-dispatch heap allocation for arbitrary-sized data — carries over.
	taskHeaderSize = 32
	// EmbeddedCapacity is the maximum payload size Dispatch accepts
	// without error, matching TASK_DATA_EMBED_MAX_SIZE.
	EmbeddedCapacity = taskDataSize - taskHeaderSize
)

// WorkFunc performs the blocking work for a task and returns an integer
// error code (0 on success), mirroring TaskFunction from executor.h. It
// receives the task's payload directly rather than an opaque void*: Go
// closures already carry whatever shared state (a hypervisor client, an
// output sink) the original smuggled through a context pointer copied into
// the payload, so the payload here holds only the small, copyable data a
// task actually needs (see SPEC_FULL.md §5).
//
// ctx is canceled by the worker the instant its timer fires, satisfying
// spec.md §9's "pass a cancellation signal, but never rely on it": a
// hypervisor call built on a context-aware client can abort early, but one
// that ignores ctx (or isn't checking it at the moment it blocks) keeps
// running as an orphan exactly as before — nothing in the executor ever
// waits on ctx to make the deadline.
type WorkFunc func(ctx context.Context, payload []byte) int

// CollectFunc is invoked exactly once per dispatched TaskDescriptor, either
// by the worker on normal completion (timedOut=false) or by the scheduler's
// timeout callback (timedOut=true, errCode forced to 0), mirroring
// TaskCollect from executor.h.
type CollectFunc func(payload []byte, errCode int, timedOut bool)

// TaskDescriptor is the unit handed to the queue, grounded on TaskData in
// executor.h. work and collect are both required to be non-nil; payload
// must fit within EmbeddedCapacity.
type TaskDescriptor struct {
	work      WorkFunc
	collect   CollectFunc
	timeoutMS int
	size      int
	data      [EmbeddedCapacity]byte

	// discarded transitions only from false to true, and only via the
	// timeout callback (§4.3). claimed is the single atomic
	// "completion claimed" flag the design notes in spec.md §9 call for:
	// whichever side — the worker's normal-completion path or the
	// timeout callback — wins the compare-and-swap is the one that
	// invokes collect, guaranteeing exactly-once delivery without a race.
	discarded atomic.Bool
	claimed   atomic.Bool

	poison bool
}

func newTaskDescriptor(work WorkFunc, collect CollectFunc, timeoutMS int, payload []byte) (*TaskDescriptor, error) {
	if work == nil || collect == nil {
		return nil, vmonerr.New(vmonerr.KindLifecycleMisuse, vmonerr.CodeNone, "work and collect must both be non-nil")
	}
	if len(payload) > EmbeddedCapacity {
		return nil, vmonerr.ErrTooMuchData
	}
	td := &TaskDescriptor{
		work:      work,
		collect:   collect,
		timeoutMS: timeoutMS,
		size:      len(payload),
	}
	copy(td.data[:], payload)
	return td, nil
}

// Payload returns the embedded bytes copied in at Dispatch time.
func (td *TaskDescriptor) Payload() []byte {
	return td.data[:td.size]
}

// claim attempts to become the single caller of collect for this
// descriptor. It returns true exactly once across however many goroutines
// race to call it.
func (td *TaskDescriptor) claim() bool {
	return td.claimed.CompareAndSwap(false, true)
}
