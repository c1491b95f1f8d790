package hypervisor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DomainFixture describes one domain a Fake should report, along with the
// latency and/or error its stats call should produce — the hook tests use
// to reproduce spec.md §8 scenario 2 (one domain blocks past the deadline,
// another returns immediately).
type DomainFixture struct {
	Domain  Domain
	Latency time.Duration
	Err     error
	Record  Record
}

// Fake is an in-memory Client used throughout this module's tests; it never
// touches a real libvirt connection. Grounded on the virsh-stub pattern in
// _examples/original_source/tests/stubs.c, which exists for exactly the
// same purpose: exercising executor/sampler logic without a hypervisor.
type Fake struct {
	mu        sync.Mutex
	fixtures  []DomainFixture
	listErr   error
	bulkErr   error
	bulkDelay time.Duration
}

// NewFake constructs a Fake with no domains configured.
func NewFake() *Fake {
	return &Fake{}
}

// SetDomains replaces the fixture set used for ListDomains/DomainStats.
func (f *Fake) SetDomains(fixtures []DomainFixture) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixtures = fixtures
}

// SetListError forces ListDomains to fail.
func (f *Fake) SetListError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// SetBulkBehavior controls AllDomainStats's injected delay/error.
func (f *Fake) SetBulkBehavior(delay time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkDelay = delay
	f.bulkErr = err
}

func (f *Fake) ListDomains(ctx context.Context) ([]Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Domain, 0, len(f.fixtures))
	for _, fx := range f.fixtures {
		out = append(out, fx.Domain)
	}
	return out, nil
}

func (f *Fake) DomainStats(ctx context.Context, dom Domain, stats StatKind) (Record, error) {
	f.mu.Lock()
	var fx *DomainFixture
	for i := range f.fixtures {
		if f.fixtures[i].Domain.UUID == dom.UUID {
			fx = &f.fixtures[i]
			break
		}
	}
	f.mu.Unlock()

	if fx == nil {
		return Record{}, nil
	}
	if fx.Latency > 0 {
		time.Sleep(fx.Latency)
	}
	if fx.Err != nil {
		return Record{}, fx.Err
	}
	rec := fx.Record
	rec.VMID = dom.UUID
	return rec, nil
}

func (f *Fake) AllDomainStats(ctx context.Context, stats StatKind) ([]Record, error) {
	f.mu.Lock()
	fixtures := append([]DomainFixture(nil), f.fixtures...)
	delay := f.bulkDelay
	err := f.bulkErr
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(fixtures))
	for _, fx := range fixtures {
		if fx.Err != nil {
			continue
		}
		rec := fx.Record
		rec.VMID = fx.Domain.UUID
		out = append(out, rec)
	}
	return out, nil
}

// NewDomain is a small convenience for tests that don't care about a
// specific UUID.
func NewDomain(name string) Domain {
	return Domain{UUID: uuid.New(), Name: name}
}
