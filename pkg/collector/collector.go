// Package collector writes the JSON success/error records described in
// spec.md §6, grounded on collect_success/collect_error/response_begin/
// response_finish in _examples/original_source/src/sampler.c and the field
// layout in vminfo_print.c. The original builds each record by hand with
// fprintf into an open_memstream buffer; here encoding/json.Marshal plays
// that role, and a single mutex around the sink plays the role of
// write_response's reliance on a single atomic write(2) call — either
// policy satisfies spec.md §5's "no interleaved partial records" rule.
package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vmon-project/vmon/pkg/hypervisor"
)

// Mode selects single-object-per-line framing or one bulk array per
// request, mirroring VmonConfig.bulk_response in vmon_int.h.
type Mode int

const (
	// PerRecordLines writes one JSON object per domain record, each on its
	// own line — the default in the original.
	PerRecordLines Mode = iota
	// BulkArray writes a single JSON object per request whose "data" field
	// is an array of per-domain objects.
	BulkArray
)

type errorPayload struct {
	VMID    string `json:"vm-id"`
	Error   errBody `json:"error"`
	Timeout string  `json:"timeout"`
}

type errBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type successEnvelope struct {
	ReqID     string      `json:"req-id"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type domainPayload struct {
	VMID    string                           `json:"vm-id"`
	PCPU    pcpuPayload                      `json:"pcpu"`
	Balloon balloonPayload                   `json:"balloon"`
	VCPU    map[string]vcpuEntry             `json:"vcpu"`
	Block   map[string]hypervisor.BlockStat  `json:"block"`
	Iface   map[string]hypervisor.IfaceStat  `json:"iface"`
}

type pcpuPayload struct {
	Time   uint64 `json:"cpu.time"`
	User   uint64 `json:"cpu.user"`
	System uint64 `json:"cpu.system"`
}

type balloonPayload struct {
	Current uint64 `json:"balloon.current"`
	Maximum uint64 `json:"balloon.maximum"`
}

type vcpuEntry struct {
	State int    `json:"state"`
	Time  uint64 `json:"time"`
}

// Collector serializes writes to out so that two completions racing to
// report at the same instant never interleave partial record text,
// matching spec.md §5's output-sink policy.
type Collector struct {
	mu   sync.Mutex
	out  io.Writer
	mode Mode
	now  func() time.Time
}

// New constructs a Collector writing newline-delimited JSON records to out.
func New(out io.Writer, mode Mode) *Collector {
	return &Collector{out: out, mode: mode, now: time.Now}
}

func toDomainPayload(rec hypervisor.Record) domainPayload {
	p := domainPayload{
		VMID:  rec.VMID.String(),
		Block: rec.Block,
		Iface: rec.Iface,
	}
	p.PCPU = pcpuPayload{Time: rec.CPU.Time, User: rec.CPU.User, System: rec.CPU.System}
	p.Balloon = balloonPayload{Current: rec.Balloon.Current, Maximum: rec.Balloon.Maximum}
	if len(rec.VCPU) > 0 {
		p.VCPU = make(map[string]vcpuEntry, len(rec.VCPU))
		for i, v := range rec.VCPU {
			p.VCPU[fmt.Sprintf("%d", i)] = vcpuEntry{State: v.State, Time: v.Time}
		}
	}
	if p.Block == nil {
		p.Block = map[string]hypervisor.BlockStat{}
	}
	if p.Iface == nil {
		p.Iface = map[string]hypervisor.IfaceStat{}
	}
	if p.VCPU == nil {
		p.VCPU = map[string]vcpuEntry{}
	}
	return p
}

// WriteSuccess emits one record (PerRecordLines) or one bulk-array record
// (BulkArray) for the given sample results, matching collect_success.
func (c *Collector) WriteSuccess(reqID uuid.UUID, records []hypervisor.Record) error {
	ts := c.now().Unix()

	if c.mode == BulkArray {
		data := make([]domainPayload, 0, len(records))
		for _, rec := range records {
			data = append(data, toDomainPayload(rec))
		}
		return c.writeLine(successEnvelope{ReqID: reqID.String(), Timestamp: ts, Data: data})
	}

	for _, rec := range records {
		env := successEnvelope{ReqID: reqID.String(), Timestamp: ts, Data: toDomainPayload(rec)}
		if err := c.writeLine(env); err != nil {
			return err
		}
	}
	return nil
}

// WriteError emits a single error record, matching collect_error. vmID may
// be the empty uuid when no domain handle was available.
func (c *Collector) WriteError(reqID uuid.UUID, vmID uuid.UUID, code int, timedOut bool) error {
	ts := c.now().Unix()
	timeout := "no"
	if timedOut {
		timeout = "yes"
	}
	vmIDStr := ""
	if vmID != uuid.Nil {
		vmIDStr = vmID.String()
	}
	env := successEnvelope{
		ReqID:     reqID.String(),
		Timestamp: ts,
		Data: errorPayload{
			VMID:    vmIDStr,
			Error:   errBody{Code: code},
			Timeout: timeout,
		},
	}
	return c.writeLine(env)
}

func (c *Collector) writeLine(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.out.Write(b)
	return err
}
