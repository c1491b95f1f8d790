package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmon-project/vmon/pkg/scheduler"
)

func TestAddFiresAfterDelay(t *testing.T) {
	s := scheduler.New()
	s.Start()
	defer s.Stop(true)

	fired := make(chan struct{}, 1)
	s.Add(20*time.Millisecond, func() bool {
		fired <- struct{}{}
		return false
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestRemoveBeforeDeadlineNeverFires(t *testing.T) {
	s := scheduler.New()
	s.Start()
	defer s.Stop(true)

	var fired atomic.Bool
	id := s.Add(100*time.Millisecond, func() bool {
		fired.Store(true)
		return false
	})
	s.Remove(id)

	time.Sleep(200 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestRemoveAfterFireIsSafe(t *testing.T) {
	s := scheduler.New()
	s.Start()
	defer s.Stop(true)

	done := make(chan struct{})
	id := s.Add(10*time.Millisecond, func() bool {
		close(done)
		return false
	})

	<-done
	require.NotPanics(t, func() { s.Remove(id) })
}

func TestPeriodicRescheduleOnTrue(t *testing.T) {
	s := scheduler.New()
	s.Start()
	defer s.Stop(true)

	var count atomic.Int32
	s.Add(5*time.Millisecond, func() bool {
		count.Add(1)
		return count.Load() < 3
	})

	require.Eventually(t, func() bool {
		return count.Load() >= 3
	}, time.Second, time.Millisecond)
}

func TestStopDropsPendingCallbacks(t *testing.T) {
	s := scheduler.New()
	s.Start()

	var fired atomic.Bool
	s.Add(200*time.Millisecond, func() bool {
		fired.Store(true)
		return false
	})

	s.Stop(true)
	time.Sleep(300 * time.Millisecond)
	assert.False(t, fired.Load())
}
