package sampler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmon-project/vmon/pkg/collector"
	"github.com/vmon-project/vmon/pkg/executor"
	"github.com/vmon-project/vmon/pkg/hypervisor"
	"github.com/vmon-project/vmon/pkg/request"
	"github.com/vmon-project/vmon/pkg/sampler"
)

// syncDispatcher runs work and collect inline, synchronously, so these
// tests exercise the Sampler's wiring without depending on the real
// Executor's goroutine scheduling.
type syncDispatcher struct{}

func (syncDispatcher) Dispatch(work executor.WorkFunc, collect executor.CollectFunc, timeoutMS int, payload []byte) error {
	errCode := work(context.Background(), payload)
	collect(payload, errCode, false)
	return nil
}

func TestBulkModeHappyPath(t *testing.T) {
	fake := hypervisor.NewFake()
	fake.SetDomains([]hypervisor.DomainFixture{
		{Domain: hypervisor.NewDomain("a"), Record: hypervisor.Record{}},
		{Domain: hypervisor.NewDomain("b"), Record: hypervisor.Record{}},
	})

	var buf bytes.Buffer
	coll := collector.New(&buf, collector.PerRecordLines)
	s := sampler.New(fake, syncDispatcher{}, coll, sampler.Config{BulkSampling: true})

	sr, err := request.Parse([]byte(`{"req-id":"9ec2b64f-e432-4020-98df-8dac9931f5f7","get-stats":["block"]}`), nil)
	require.NoError(t, err)
	require.NoError(t, s.Send(sr))

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, 2, "two domains should yield two success records")
	for _, line := range lines {
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &decoded))
		assert.Equal(t, "9ec2b64f-e432-4020-98df-8dac9931f5f7", decoded["req-id"])
	}
}

func TestPerDomainModeOneSlowOneFast(t *testing.T) {
	fake := hypervisor.NewFake()
	slow := hypervisor.NewDomain("slow")
	fast := hypervisor.NewDomain("fast")
	fake.SetDomains([]hypervisor.DomainFixture{
		{Domain: slow, Latency: 500 * time.Millisecond},
		{Domain: fast},
	})

	var buf bytes.Buffer
	coll := collector.New(&buf, collector.PerRecordLines)
	exec := executor.New(2, 4)
	require.NoError(t, exec.Start())
	defer exec.Stop(true)

	s := sampler.New(fake, exec, coll, sampler.Config{TimeoutMS: 100})

	sr, err := request.Parse([]byte(`{"get-stats":["block"]}`), nil)
	require.NoError(t, err)
	require.NoError(t, s.Send(sr))

	require.Eventually(t, func() bool {
		return bytes.Count(buf.Bytes(), []byte("\n")) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, buf.String(), `"timeout":"yes"`)
	assert.Equal(t, 2, exec.LiveWorkerCount())
}

func TestMalformedRequestReturnsBadRequest(t *testing.T) {
	fake := hypervisor.NewFake()
	var buf bytes.Buffer
	coll := collector.New(&buf, collector.PerRecordLines)
	s := sampler.New(fake, syncDispatcher{}, coll, sampler.Config{})

	err := s.Handle([]byte(`{ "req-id": 1 }`), nil)
	assert.Error(t, err)
	assert.Empty(t, buf.String())
}
