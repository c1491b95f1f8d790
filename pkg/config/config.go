// Package config binds the daemon's command-line surface, grounded on
// config_defaults/config_parse_cmdline in
// _examples/original_source/src/vmon.c and the flag-variable style used in
// the teacher's cmd/noisefs/main.go. The original uses glib's GOptionEntry
// table; stdlib flag plays the same role here, one entry per CLI switch
// named in spec.md §6.
package config

import (
	"flag"
	"fmt"

	"github.com/vmon-project/vmon/pkg/logging"
)

// Default values, mirroring TIMEOUT/MAX_THREADS/TASKS_PER_THREAD in
// _examples/original_source/src/vmon_int.h.
const (
	DefaultTimeoutMS = 5000
	DefaultThreads   = 4
	tasksPerThread   = 8
	DefaultMaxTasks  = DefaultThreads * tasksPerThread
)

// Config holds every CLI-controlled knob, mirroring VmonConfig.
type Config struct {
	TimeoutMS       int
	MaxTasks        int
	MaxThreads      int
	PollingPeriodS  int
	LogLevel        string
	LogFile         string
	BulkSampling    bool
	DiskUsageMonPct int
	EventsOnly      bool
}

// Defaults returns a Config populated the way config_defaults populates
// VmonConfig.
func Defaults() Config {
	return Config{
		TimeoutMS:  DefaultTimeoutMS,
		MaxTasks:   DefaultMaxTasks,
		MaxThreads: DefaultThreads,
		LogLevel:   "info",
	}
}

// ParseFlags binds and parses the CLI flags listed in spec.md §6 against
// fs, returning a populated Config. Passing a *flag.FlagSet (rather than
// using the package-level flag.CommandLine) keeps this testable without
// mutating global flag state, unlike config_parse_cmdline's direct use of
// GOptionContext against argv.
func ParseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Defaults()

	fs.IntVar(&cfg.TimeoutMS, "timeout", cfg.TimeoutMS, "Per-task timeout in milliseconds. 0 to disable")
	fs.IntVar(&cfg.MaxTasks, "max-tasks", cfg.MaxTasks, "Maximum amount of tasks to be queued")
	fs.IntVar(&cfg.MaxThreads, "max-threads", cfg.MaxThreads, "Max worker threads to be used")
	fs.IntVar(&cfg.PollingPeriodS, "polling-period", cfg.PollingPeriodS, "Autonomously poll libvirt every N seconds instead of reading stdin")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Logging level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Send log output to this file (default: stderr)")
	fs.BoolVar(&cfg.BulkSampling, "bulk-sampling", cfg.BulkSampling, "Use a single bulk hypervisor call instead of per-domain tasks")
	fs.IntVar(&cfg.DiskUsageMonPct, "disk-usage-monitor", cfg.DiskUsageMonPct, "Deliver events when disk usage exceeds PERC of the physical size (0-99)")
	fs.BoolVar(&cfg.EventsOnly, "events-only", cfg.EventsOnly, "Send in output only events")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reproduces config_parse_cmdline's range checks on threads,
// tasks, and disk_usage_perc.
func (c Config) Validate() error {
	if c.MaxThreads <= 0 {
		return fmt.Errorf("option 'max-threads' must be positive")
	}
	if c.MaxTasks <= 0 {
		return fmt.Errorf("option 'max-tasks' must be positive")
	}
	if c.DiskUsageMonPct < 0 || c.DiskUsageMonPct > 99 {
		return fmt.Errorf("option 'disk-usage-monitor' must be in range [0,99]")
	}
	return nil
}

// ParseLogLevel translates the CLI's string level into the logging
// package's enum, falling back to InfoLevel on an unrecognized value — the
// original instead took a raw integer for -d/--log-level; the string form
// here matches how the rest of this module (and the teacher's logging
// package) names levels.
func (c Config) ParseLogLevel() logging.LogLevel {
	lvl, err := logging.ParseLogLevel(c.LogLevel)
	if err != nil {
		return logging.InfoLevel
	}
	return lvl
}
