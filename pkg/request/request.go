// Package request parses the line-framed JSON sampling requests described
// in spec.md §6, grounded on sampler_parse_request and parse_stats_string
// in _examples/original_source/src/sampler.c. The original hand-rolls a
// jsmn token walk with a fixed 32-token budget; Go's encoding/json gives
// the same "tolerate unknown keys, reject malformed shapes" behavior
// without reimplementing a tokenizer, so the token-count cap is kept only
// as a cap on the get-stats array length (mirroring JSON_REQUEST_MAX_TOKENS'
// practical effect) rather than on raw token count.
package request

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vmon-project/vmon/pkg/hypervisor"
	"github.com/vmon-project/vmon/pkg/vmonerr"
)

// maxStatsTokens bounds the get-stats array length, standing in for the
// fixed jsmntok_t budget the original allocates on the stack. spec.md §4.5
// states this bound as 32 tokens.
const maxStatsTokens = 32

// Sample is the parsed form of one request line, mirroring SampleRequest in
// vmon_int.h. ReqID is the zero UUID when the request omitted "req-id".
type Sample struct {
	ReqID uuid.UUID
	Stats hypervisor.StatKind
}

var statNames = map[string]hypervisor.StatKind{
	"state":     hypervisor.StatState,
	"cpu-total": hypervisor.StatCPUTotal,
	"balloon":   hypervisor.StatBalloon,
	"vcpu":      hypervisor.StatVCPU,
	"interface": hypervisor.StatInterface,
	"block":     hypervisor.StatBlock,
}

type wireRequest struct {
	ReqID    *string  `json:"req-id"`
	GetStats []string `json:"get-stats"`
}

// UnknownStatLogger receives the request's req-id (possibly the zero UUID)
// and the raw, unrecognized token text, mirroring the g_message call in
// parse_stats_string. It may be nil, in which case unknown stats are
// silently ignored.
type UnknownStatLogger func(reqID uuid.UUID, token string)

// Parse decodes one request line. A malformed top-level shape, a
// non-string/too-long req-id, or a get-stats entry that is not a string
// each return a BadRequest error and the caller should drop the line and
// keep reading, per spec.md §7's BadRequest policy. An unrecognized
// get-stats token is logged via onUnknown (if non-nil) and otherwise
// ignored — it does not fail the request, mirroring parse_stats_string's
// err=-1-but-continue behavior being swallowed by the caller in practice.
func Parse(line []byte, onUnknown UnknownStatLogger) (Sample, error) {
	var wire wireRequest
	if err := json.Unmarshal(line, &wire); err != nil {
		return Sample{}, vmonerr.New(vmonerr.KindBadRequest, vmonerr.CodeNone, "malformed JSON request: "+err.Error())
	}

	var sr Sample
	if wire.ReqID != nil {
		id, err := uuid.Parse(*wire.ReqID)
		if err != nil {
			return Sample{}, vmonerr.New(vmonerr.KindBadRequest, vmonerr.CodeNone, "req-id is not a valid uuid: "+err.Error())
		}
		sr.ReqID = id
	}

	if len(wire.GetStats) > maxStatsTokens {
		return Sample{}, vmonerr.New(vmonerr.KindBadRequest, vmonerr.CodeNone,
			fmt.Sprintf("get-stats array too long: %d > %d", len(wire.GetStats), maxStatsTokens))
	}

	for _, tok := range wire.GetStats {
		kind, ok := statNames[tok]
		if !ok {
			if onUnknown != nil {
				onUnknown(sr.ReqID, tok)
			}
			continue
		}
		sr.Stats |= kind
	}

	return sr, nil
}

// Stringify renders a StatKind bitmask back to the canonical get-stats
// token list, in the same order statNames lists them. Parsing Stringify's
// output must reproduce the same bitmask — the round-trip law spec.md §8
// requires.
func Stringify(stats hypervisor.StatKind) []string {
	order := []string{"state", "cpu-total", "balloon", "vcpu", "interface", "block"}
	out := make([]string, 0, len(order))
	for _, name := range order {
		if stats&statNames[name] != 0 {
			out = append(out, name)
		}
	}
	return out
}
