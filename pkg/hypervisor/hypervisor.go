// Package hypervisor models the external collaborator spec.md §1 calls out
// of scope: the libvirt client library. Client is the seam the rest of the
// module calls through; a real implementation would wrap
// libvirt.org/go/libvirt, but wiring an actual libvirt connection is outside
// this repository's bounded-execution-engine focus, so only the interface
// and a deterministic Fake (for tests) live here, grounded on the
// virConnectListAllDomains / virConnectGetAllDomainStats /
// virDomainListGetStats calls in
// _examples/original_source/src/sampler.c.
package hypervisor

import (
	"context"

	"github.com/google/uuid"
)

// Domain is an opaque handle to a running VM, standing in for libvirt's
// virDomainPtr. The Sampler never inspects it beyond passing it back into
// DomainStats and releasing it after collect.
type Domain struct {
	UUID uuid.UUID
	Name string
}

// StatKind mirrors the VIR_DOMAIN_STATS_* bitmask values recognized by
// parse_stats_string in sampler.c.
type StatKind uint32

const (
	StatState StatKind = 1 << iota
	StatCPUTotal
	StatBalloon
	StatVCPU
	StatInterface
	StatBlock
)

// Record is one domain's worth of sampled statistics, grounded on VmInfo in
// _examples/original_source/src/vminfo.h/.c. Only the fields the §6 JSON
// schema needs are modeled; block/iface devices are keyed by name to match
// the original's per-device JSON objects.
type Record struct {
	VMID uuid.UUID

	CPU struct {
		Time, User, System uint64
	}
	Balloon struct {
		Current, Maximum uint64
	}
	VCPU []VCPUStat
	Block map[string]BlockStat
	Iface map[string]IfaceStat
}

// VCPUStat is one entry of the vcpu map in the success record, indexed by
// vCPU ordinal.
type VCPUStat struct {
	State int
	Time  uint64
}

// BlockStat mirrors the per-device fields block_print_json writes.
type BlockStat struct {
	RdBytes      uint64 `json:"rd_bytes"`
	RdOperations uint64 `json:"rd_operations"`
	RdTotalTimes uint64 `json:"rd_total_times"`
	WrBytes      uint64 `json:"wr_bytes"`
	WrOperations uint64 `json:"wr_operations"`
	WrTotalTimes uint64 `json:"wr_total_times"`
	Allocation   uint64 `json:"allocation"`
	Capacity     uint64 `json:"capacity"`
	Physical     uint64 `json:"physical"`
}

// IfaceStat mirrors the per-device fields iface_print_json writes.
type IfaceStat struct {
	RxBytes   uint64 `json:"rx_bytes"`
	RxPackets uint64 `json:"rx_pkts"`
	RxErrors  uint64 `json:"rx_errs"`
	RxDropped uint64 `json:"rx_drop"`
	TxBytes   uint64 `json:"tx_bytes"`
	TxPackets uint64 `json:"tx_pkts"`
	TxErrors  uint64 `json:"tx_errs"`
	TxDropped uint64 `json:"tx_drop"`
}

// Client is the seam between the Sampler/Controller and a real hypervisor
// connection. ctx is advisory: implementations may use it to bound how long
// they wait internally, but per spec.md §9 the executor's own timeout
// handling never depends on ctx firing — a Client that ignores
// cancellation entirely is a conforming implementation.
type Client interface {
	// ListDomains returns all domains visible under the connection's
	// current flags, mirroring virConnectListAllDomains.
	ListDomains(ctx context.Context) ([]Domain, error)

	// DomainStats samples a single domain, mirroring virDomainListGetStats.
	DomainStats(ctx context.Context, dom Domain, stats StatKind) (Record, error)

	// AllDomainStats samples every running domain in one call, mirroring
	// virConnectGetAllDomainStats (bulk mode).
	AllDomainStats(ctx context.Context, stats StatKind) ([]Record, error)
}
