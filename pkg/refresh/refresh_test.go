package refresh_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmon-project/vmon/pkg/hypervisor"
	"github.com/vmon-project/vmon/pkg/refresh"
)

// TestPartitionedRefreshDistributesDomains exercises spec.md §8 scenario 6:
// instances 0..3 (id 0 refresher), three domains partitioned across
// instances 1,2,3.
func TestPartitionedRefreshDistributesDomains(t *testing.T) {
	fake := hypervisor.NewFake()
	fake.SetDomains([]hypervisor.DomainFixture{
		{Domain: hypervisor.NewDomain("a")},
		{Domain: hypervisor.NewDomain("b")},
		{Domain: hypervisor.NewDomain("c")},
	})

	state := refresh.NewState(4)
	require.NoError(t, refresh.Refresh(context.Background(), fake, state))

	readers := []*refresh.Reader{
		refresh.NewReader(1, state),
		refresh.NewReader(2, state),
		refresh.NewReader(3, state),
	}

	seen := map[string]bool{}
	var total int
	for _, r := range readers {
		partition, ok := r.WaitAndCopy(nil)
		require.True(t, ok)
		for _, dom := range partition {
			assert.False(t, seen[dom.UUID.String()], "a domain must land in exactly one partition")
			seen[dom.UUID.String()] = true
		}
		total += len(partition)
	}
	assert.Equal(t, 3, total)
}

func TestDomainIsReadyPredicateFiltersPartition(t *testing.T) {
	fake := hypervisor.NewFake()
	excluded := hypervisor.NewDomain("excluded")
	included := hypervisor.NewDomain("included")
	fake.SetDomains([]hypervisor.DomainFixture{{Domain: excluded}, {Domain: included}})

	state := refresh.NewState(2) // one refresher + one reader
	require.NoError(t, refresh.Refresh(context.Background(), fake, state))

	r := refresh.NewReader(1, state)
	partition, ok := r.WaitAndCopy(func(d hypervisor.Domain) bool {
		return d.UUID != excluded.UUID
	})
	require.True(t, ok)
	require.Len(t, partition, 1)
	assert.Equal(t, included.UUID, partition[0].UUID)
}

func TestReaderBlocksUntilRefreshAdvancesGeneration(t *testing.T) {
	state := refresh.NewState(2)
	r := refresh.NewReader(1, state)

	got := make(chan bool, 1)
	go func() {
		_, ok := r.WaitAndCopy(nil)
		got <- ok
	}()

	select {
	case <-got:
		t.Fatal("reader should not proceed before the first refresh")
	case <-time.After(50 * time.Millisecond):
	}

	fake := hypervisor.NewFake()
	require.NoError(t, refresh.Refresh(context.Background(), fake, state))

	select {
	case ok := <-got:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("reader never woke after refresh")
	}
}

func TestStopReleasesWaitingReaders(t *testing.T) {
	state := refresh.NewState(3)
	var wg sync.WaitGroup
	results := make(chan bool, 2)

	for i := 1; i <= 2; i++ {
		r := refresh.NewReader(i, state)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := r.WaitAndCopy(nil)
			results <- ok
		}()
	}

	time.Sleep(20 * time.Millisecond)
	refresh.Stop(state)

	wg.Wait()
	close(results)
	for ok := range results {
		assert.False(t, ok)
	}
}
