// Package controller binds the request source, Sampler, Executor, and
// Scheduler together into one running daemon instance, grounded on
// vmon_setup_io/vmon_io_callback/poll_libvirt in
// _examples/original_source/src/vmon_int.c. Per spec.md §9's "global
// mutable state" note, the original's process-scope VmonContext is
// re-architected here as a single owned Controller value with no
// package-level globals.
package controller

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/vmon-project/vmon/pkg/executor"
	"github.com/vmon-project/vmon/pkg/hypervisor"
	"github.com/vmon-project/vmon/pkg/logging"
	"github.com/vmon-project/vmon/pkg/request"
	"github.com/vmon-project/vmon/pkg/sampler"
)

// Handler is the minimal surface Controller needs out of a Sampler —
// narrowed to an interface so tests can substitute a recorder.
type Handler interface {
	Handle(line []byte, onUnknownStat request.UnknownStatLogger) error
	Send(sr request.Sample) error
}

// Controller owns one daemon run: it either drives a line-oriented reader
// loop (mirroring vmon_io_callback) or, when PollingPeriod is set, a
// periodic self-polling loop (mirroring poll_libvirt), never both —
// exactly the either/or branch in vmon_setup_io.
type Controller struct {
	sampler  Handler
	executor *executor.Executor
	log      *logging.Logger

	// PollingPeriod, when non-zero, engages periodic self-polling instead
	// of reading the request source, mirroring ctx->conf.period.
	PollingPeriod time.Duration
}

// New constructs a Controller. log should already be scoped with
// WithComponent("controller") or similar by the caller.
func New(s Handler, exec *executor.Executor, log *logging.Logger) *Controller {
	return &Controller{sampler: s, executor: exec, log: log}
}

// Run drives the line-oriented request reader until in reaches EOF, a
// read error occurs, or ctx is canceled — mirroring vmon_io_callback's
// read/dispatch/quit-on-error loop. A malformed request line is logged and
// skipped, matching spec.md §7's BadRequest policy; the reader keeps going.
func (c *Controller) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		err := c.sampler.Handle(line, c.logUnknownStat)
		if err != nil {
			c.log.Warn("dropping malformed request", map[string]interface{}{"error": err.Error()})
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}

// RunPolling drives periodic self-polling instead of a request reader,
// mirroring poll_libvirt: every tick it synthesizes an all-stats request
// with a fresh req-id and sends it through the Sampler directly (bypassing
// RequestParser, since there is no request line to parse). It returns when
// ctx is canceled.
func (c *Controller) RunPolling(ctx context.Context) error {
	if c.PollingPeriod <= 0 {
		return errors.New("controller: RunPolling requires a positive PollingPeriod")
	}

	ticker := time.NewTicker(c.PollingPeriod)
	defer ticker.Stop()

	var counter uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sr := request.Sample{
				ReqID: uuid.New(),
				Stats: hypervisor.StatState | hypervisor.StatCPUTotal | hypervisor.StatBalloon |
					hypervisor.StatVCPU | hypervisor.StatInterface | hypervisor.StatBlock,
			}
			if err := c.sampler.Send(sr); err != nil {
				c.log.Warn("error polling libvirt", map[string]interface{}{"error": err.Error()})
				continue
			}
			c.log.Debug("polling libvirt", map[string]interface{}{"loop": counter})
			counter++
		}
	}
}

func (c *Controller) logUnknownStat(reqID uuid.UUID, token string) {
	c.log.Warn("ignored unknown stat", map[string]interface{}{"req-id": reqID.String(), "stat": token})
}

// Shutdown stops the owned Executor, mirroring the teardown path after
// g_main_loop_run returns in vmon.c's main.
func (c *Controller) Shutdown(wait bool) {
	c.executor.Stop(wait)
}
