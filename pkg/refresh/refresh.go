// Package refresh implements the alternative partitioned-refresh design
// variant described in spec.md §4.7, grounded on virt2_refresh and
// virt2_read_partition in _examples/original_source/collectd/virt2.c. One
// instance (id 0) periodically lists all domains and partitions them across
// the remaining N-1 instances; those instances wait for a fresh generation,
// then copy their partition and sample outside the lock.
package refresh

import (
	"context"
	"sync"

	"github.com/vmon-project/vmon/pkg/hypervisor"
)

// ReadyFunc mirrors virt2_domain_is_ready: an optional predicate applied
// while copying a partition. A domain for which it returns false is
// omitted from that partition's sampling call.
type ReadyFunc func(hypervisor.Domain) bool

// State is the shared coordination point between the refresher instance
// and the readers, grounded on virt2_state_t's lock/cond/generation/
// waiters/done fields.
type State struct {
	mu         sync.Mutex
	cond       *sync.Cond
	generation uint64
	waiters    int
	done       bool

	partitions [][]hypervisor.Domain
}

// NewState constructs shared refresh state for instanceCount instances
// (id 0 is always the refresher; instanceCount-1 partitions are produced
// per refresh).
func NewState(instanceCount int) *State {
	s := &State{partitions: make([][]hypervisor.Domain, max(instanceCount-1, 0))}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Refresh is the id-0 refresher step: list all domains, partition them
// round-robin across the reader instances, and advance the generation —
// mirroring virt2_refresh. The refresher increments generation only after
// the shared domain list/partitions have been replaced, matching spec.md
// §4.7's invariant.
func Refresh(ctx context.Context, client hypervisor.Client, state *State) error {
	domains, err := client.ListDomains(ctx)
	if err != nil {
		return err
	}

	n := len(state.partitions)
	partitioned := make([][]hypervisor.Domain, n)
	if n > 0 {
		for i, dom := range domains {
			slot := i % n
			partitioned[slot] = append(partitioned[slot], dom)
		}
	}

	state.mu.Lock()
	state.partitions = partitioned
	state.generation++
	if state.waiters > 0 {
		state.cond.Broadcast()
	}
	state.mu.Unlock()
	return nil
}

// Stop marks the shared state done, releasing any readers blocked waiting
// for a fresh generation — mirroring the plugin shutdown path that sets
// state->done before tearing instances down.
func Stop(state *State) {
	state.mu.Lock()
	state.done = true
	state.cond.Broadcast()
	state.mu.Unlock()
}

// Reader is one non-refresher instance (id 1..N-1). Each call to
// WaitAndCopy blocks until the shared generation has advanced past this
// reader's local generation (or the state is done), then returns a private
// copy of this reader's partition — mirroring virt2_read_partition's
// lock/wait/copy/unlock sequence, so the subsequent (possibly blocking)
// sampling call runs outside the shared lock.
type Reader struct {
	id    int
	state *State
	local uint64
}

// NewReader constructs a Reader for partition index id (1-based across
// instances, 0-based into State.partitions).
func NewReader(id int, state *State) *Reader {
	return &Reader{id: id, state: state}
}

// WaitAndCopy returns (partition, ok). ok is false only when the state has
// been marked done while waiting, signaling the reader should exit.
func (r *Reader) WaitAndCopy(ready ReadyFunc) ([]hypervisor.Domain, bool) {
	r.state.mu.Lock()
	r.state.waiters++
	for r.local >= r.state.generation && !r.state.done {
		r.state.cond.Wait()
	}
	r.state.waiters--

	if r.state.done {
		r.state.mu.Unlock()
		return nil, false
	}

	idx := r.id - 1
	var partition []hypervisor.Domain
	if idx >= 0 && idx < len(r.state.partitions) {
		for _, dom := range r.state.partitions[idx] {
			if ready == nil || ready(dom) {
				partition = append(partition, dom)
			}
		}
	}
	r.state.mu.Unlock()

	// Mirrors virt2_read_partition's inst->generation++: the reader only
	// needs to know it has consumed one more generation than before, not
	// the refresher's exact counter value.
	r.local++
	return partition, true
}
