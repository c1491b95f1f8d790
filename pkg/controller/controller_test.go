package controller_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmon-project/vmon/pkg/controller"
	"github.com/vmon-project/vmon/pkg/executor"
	"github.com/vmon-project/vmon/pkg/logging"
	"github.com/vmon-project/vmon/pkg/request"
)

type recordingHandler struct {
	lines [][]byte
	sends []request.Sample
	err   error
}

func (r *recordingHandler) Handle(line []byte, onUnknown request.UnknownStatLogger) error {
	if r.err != nil {
		return r.err
	}
	r.lines = append(r.lines, append([]byte(nil), line...))
	return nil
}

func (r *recordingHandler) Send(sr request.Sample) error {
	r.sends = append(r.sends, sr)
	return nil
}

func newLogger() *logging.Logger {
	return logging.NewLogger(logging.DefaultConfig())
}

func TestRunDispatchesEachLine(t *testing.T) {
	h := &recordingHandler{}
	exec := executor.New(1, 1)
	c := controller.New(h, exec, newLogger())

	in := strings.NewReader("{}\n{\"req-id\":\"x\"}\n")
	require.NoError(t, c.Run(context.Background(), in))
	assert.Len(t, h.lines, 2)
}

func TestRunSkipsBlankLines(t *testing.T) {
	h := &recordingHandler{}
	exec := executor.New(1, 1)
	c := controller.New(h, exec, newLogger())

	in := strings.NewReader("{}\n\n{}\n")
	require.NoError(t, c.Run(context.Background(), in))
	assert.Len(t, h.lines, 2)
}

func TestRunContinuesAfterMalformedRequest(t *testing.T) {
	h := &recordingHandler{err: assertError{}}
	exec := executor.New(1, 1)
	c := controller.New(h, exec, newLogger())

	in := strings.NewReader("{ \"req-id\": 1 }\n{}\n")
	require.NoError(t, c.Run(context.Background(), in))
	// recordingHandler always errors in this test, so nothing gets
	// recorded, but Run must still finish cleanly having read both lines.
}

type assertError struct{}

func (assertError) Error() string { return "bad request" }

func TestRunPollingSendsOnEachTick(t *testing.T) {
	h := &recordingHandler{}
	exec := executor.New(1, 1)
	c := controller.New(h, exec, newLogger())
	c.PollingPeriod = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	err := c.RunPolling(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(h.sends), 3)
}

func TestRunPollingRequiresPositivePeriod(t *testing.T) {
	h := &recordingHandler{}
	exec := executor.New(1, 1)
	c := controller.New(h, exec, newLogger())

	err := c.RunPolling(context.Background())
	assert.Error(t, err)
}
