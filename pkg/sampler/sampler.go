// Package sampler translates a parsed request into executor work, grounded
// on sampler_send_request, list_domains_work, bulk_sampling_work and
// sampling_collect in _examples/original_source/src/sampler.c.
package sampler

import (
	"context"

	"github.com/google/uuid"

	"github.com/vmon-project/vmon/pkg/collector"
	"github.com/vmon-project/vmon/pkg/executor"
	"github.com/vmon-project/vmon/pkg/hypervisor"
	"github.com/vmon-project/vmon/pkg/request"
)

// Dispatcher is the subset of *executor.Executor the Sampler needs; an
// interface so tests can swap in a fake without spinning up real workers.
type Dispatcher interface {
	Dispatch(work executor.WorkFunc, collect executor.CollectFunc, timeoutMS int, payload []byte) error
}

// Config bundles the Sampler's fixed knobs, mirroring the timeout/
// bulk_sampling fields read out of VmonConfig in sampler_send_request.
type Config struct {
	TimeoutMS    int
	BulkSampling bool
}

// Sampler owns no domain handles itself: per spec.md §4.6 it releases them
// in the task's collect phase, simply by letting the per-dispatch closures
// go out of scope once collect returns. Each Handle/Send call's state
// (sampled records, errors) lives in local variables captured by that
// call's own work/collect closures — never on the Sampler — so concurrent
// requests never share mutable state.
type Sampler struct {
	client     hypervisor.Client
	dispatcher Dispatcher
	collector  *collector.Collector
	timeoutMS  int
	bulk       bool
}

// New constructs a Sampler. client performs the actual hypervisor calls;
// dispatcher runs them under the bounded worker pool; coll renders results
// to the output sink.
func New(client hypervisor.Client, dispatcher Dispatcher, coll *collector.Collector, cfg Config) *Sampler {
	return &Sampler{
		client:     client,
		dispatcher: dispatcher,
		collector:  coll,
		timeoutMS:  cfg.TimeoutMS,
		bulk:       cfg.BulkSampling,
	}
}

// Handle parses and dispatches one request line, mirroring
// sampler_handle_request. A BadRequest error from parsing is the caller's
// responsibility to log and drop, per spec.md §7.
func (s *Sampler) Handle(line []byte, onUnknownStat request.UnknownStatLogger) error {
	sr, err := request.Parse(line, onUnknownStat)
	if err != nil {
		return err
	}
	return s.Send(sr)
}

// Send dispatches sr via bulk or per-domain mode depending on
// configuration, mirroring sampler_send_request's task selection.
func (s *Sampler) Send(sr request.Sample) error {
	if s.bulk {
		return s.dispatchBulk(sr)
	}
	return s.dispatchPerDomain(sr)
}

// dispatchBulk mirrors bulk_sampling_work/sampling_collect: one task whose
// work samples every domain in a single hypervisor call, whose collect
// phase renders either the success records or a single error record.
func (s *Sampler) dispatchBulk(sr request.Sample) error {
	var records []hypervisor.Record

	work := func(ctx context.Context, _ []byte) int {
		var err error
		records, err = s.client.AllDomainStats(ctx, sr.Stats)
		return errToCode(err)
	}
	collect := func(_ []byte, errCode int, timedOut bool) {
		if errCode != 0 || timedOut {
			s.collector.WriteError(sr.ReqID, uuid.Nil, errCode, timedOut)
			return
		}
		s.collector.WriteSuccess(sr.ReqID, records)
	}
	return s.dispatcher.Dispatch(work, collect, s.timeoutMS, nil)
}

// dispatchPerDomain lists domains with one preparatory task, then dispatches
// one sampling task per returned domain — mirroring list_domains_work's
// fan-out via executor_dispatch inside its own work callback. The
// preparatory task's own error is reported once (collectPrep); per-domain
// errors are reported individually (collectDomain), per spec.md §4.6.
func (s *Sampler) dispatchPerDomain(sr request.Sample) error {
	work := func(ctx context.Context, _ []byte) int {
		domains, err := s.client.ListDomains(ctx)
		if err != nil {
			return errToCode(err)
		}
		for _, dom := range domains {
			dom := dom // pin for the closures below
			var rec hypervisor.Record

			domainWork := func(ctx context.Context, _ []byte) int {
				var err error
				rec, err = s.client.DomainStats(ctx, dom, sr.Stats)
				return errToCode(err)
			}
			domainCollect := func(_ []byte, errCode int, timedOut bool) {
				if errCode != 0 || timedOut {
					s.collector.WriteError(sr.ReqID, dom.UUID, errCode, timedOut)
					return
				}
				s.collector.WriteSuccess(sr.ReqID, []hypervisor.Record{rec})
			}

			if err := s.dispatcher.Dispatch(domainWork, domainCollect, s.timeoutMS, nil); err != nil {
				// Overload/PayloadTooLarge rejecting this one domain's task
				// is itself reported as a per-domain error, not a timeout.
				s.collector.WriteError(sr.ReqID, dom.UUID, 0, false)
			}
		}
		return 0
	}
	collectPrep := func(_ []byte, errCode int, timedOut bool) {
		if errCode != 0 || timedOut {
			s.collector.WriteError(sr.ReqID, uuid.Nil, errCode, timedOut)
		}
	}
	return s.dispatcher.Dispatch(work, collectPrep, s.timeoutMS, nil)
}

func errToCode(err error) int {
	if err == nil {
		return 0
	}
	return -1
}
