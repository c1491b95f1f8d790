package config

import (
	"fmt"
	"strconv"
	"strings"
)

// PluginConfig mirrors virt2_config_s in
// _examples/original_source/collectd/virt2.c: the configuration block for
// the partitioned-refresh plugin variant (spec.md §4.7), as opposed to the
// CLI flags above that configure the standalone daemon.
type PluginConfig struct {
	ConnectionURI   string
	RefreshInterval int // seconds
	Instances       int
	DomainCheck     bool
}

// ParsePluginKV parses the "Key value" lines of a <Plugin "virt2"> block,
// one per line, e.g.:
//
//	Connection "qemu:///system"
//	RefreshInterval 60
//	Instances 5
//	DomainCheck true
//
// The original's config_keys table (virt2.c line 61-67) is missing a comma
// between "RefreshInterval" and "Instances", so the two adjacent C string
// literals concatenate into a single "RefreshIntervalInstances" entry —
// almost certainly an unintentional bug, since RefreshInterval's own
// virt2_config callback at "Instances" still works by accident (cf_util
// dispatches by matching the *handler* registered for each literal key,
// and the registration loop itself duplicates key strings rather than
// reusing config_keys). Rather than reproduce the concatenation bug,
// RefreshInterval and Instances are kept here as two distinct, independently
// recognized keys — spec.md §9's open question on this point is resolved in
// favor of the clearly-intended behavior, not the accidental one.
func ParsePluginKV(lines []string) (PluginConfig, error) {
	var pc PluginConfig
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		key, value, err := splitKV(line)
		if err != nil {
			return PluginConfig{}, fmt.Errorf("line %d: %w", i+1, err)
		}

		switch strings.ToLower(key) {
		case "connection":
			pc.ConnectionURI = value
		case "refreshinterval":
			n, err := strconv.Atoi(value)
			if err != nil {
				return PluginConfig{}, fmt.Errorf("line %d: RefreshInterval must be an integer: %w", i+1, err)
			}
			pc.RefreshInterval = n
		case "instances":
			n, err := strconv.Atoi(value)
			if err != nil {
				return PluginConfig{}, fmt.Errorf("line %d: Instances must be an integer: %w", i+1, err)
			}
			pc.Instances = n
		case "domaincheck":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return PluginConfig{}, fmt.Errorf("line %d: DomainCheck must be a bool: %w", i+1, err)
			}
			pc.DomainCheck = b
		default:
			return PluginConfig{}, fmt.Errorf("line %d: unrecognized key %q", i+1, key)
		}
	}
	return pc, nil
}

// splitKV splits "Key value" or `Key "quoted value"` into its two parts.
func splitKV(line string) (string, string, error) {
	parts := strings.SplitN(line, " ", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed config line %q", line)
	}
	key := parts[0]
	value := strings.TrimSpace(parts[1])
	value = strings.Trim(value, `"`)
	return key, value, nil
}
