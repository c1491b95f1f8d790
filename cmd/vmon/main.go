// Command vmon samples libvirt domain statistics on behalf of a
// higher-level management layer, grounded on main() in
// _examples/original_source/src/vmon.c: parse CLI config, connect to the
// hypervisor, start the scheduler and executor, then drive either a
// stdin request reader or periodic self-polling until the input source is
// exhausted or an unrecoverable error occurs.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vmon-project/vmon/pkg/collector"
	"github.com/vmon-project/vmon/pkg/config"
	"github.com/vmon-project/vmon/pkg/controller"
	"github.com/vmon-project/vmon/pkg/executor"
	"github.com/vmon-project/vmon/pkg/hypervisor"
	"github.com/vmon-project/vmon/pkg/logging"
	"github.com/vmon-project/vmon/pkg/sampler"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("vmon", flag.ContinueOnError)
	cfg, err := config.ParseFlags(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse the command line arguments: %v\n", err)
		return 1
	}

	log, closeLog, err := setupLog(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		return 1
	}
	defer closeLog()

	log.Info("starting vmon", map[string]interface{}{
		"threads": cfg.MaxThreads,
		"tasks":   cfg.MaxTasks,
	})

	client, err := connectHypervisor(cfg)
	if err != nil {
		log.Error("failed to open connection to the hypervisor", map[string]interface{}{"error": err.Error()})
		return 1
	}
	log.Info("connected to the hypervisor", nil)

	exec := executor.New(cfg.MaxThreads, cfg.MaxTasks)
	if err := exec.Start(); err != nil {
		log.Error("failed to start the task executor", map[string]interface{}{"error": err.Error()})
		return 1
	}

	coll := collector.New(os.Stdout, collectorMode(cfg))
	samp := sampler.New(client, exec, coll, sampler.Config{
		TimeoutMS:    cfg.TimeoutMS,
		BulkSampling: cfg.BulkSampling,
	})

	ctrl := controller.New(samp, exec, log.WithComponent("controller"))
	if cfg.PollingPeriodS > 0 {
		ctrl.PollingPeriod = secondsToDuration(cfg.PollingPeriodS)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("running", nil)
	var runErr error
	if cfg.PollingPeriodS > 0 {
		runErr = ctrl.RunPolling(ctx)
	} else {
		runErr = ctrl.Run(ctx, os.Stdin)
	}

	ctrl.Shutdown(true)

	if runErr != nil {
		log.Error("stopped with error", map[string]interface{}{"error": runErr.Error()})
		return 1
	}
	log.Info("stopped cleanly", nil)
	return 0
}

func setupLog(cfg config.Config) (*logging.Logger, func(), error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.ParseLogLevel()
	logCfg.Output = os.Stderr

	closer := func() {}
	if cfg.LogFile != "" {
		out, err := logging.CreateFileOutput(cfg.LogFile)
		if err != nil {
			return nil, nil, err
		}
		logCfg.Output = out
		if c, ok := out.(io.Closer); ok {
			closer = func() { c.Close() }
		}
	}

	return logging.NewLogger(logCfg), closer, nil
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// collectorMode ties response framing to --bulk-sampling: spec.md §6
// describes bulk-response framing ("one outer object containing the array
// of per-domain data") in the same breath as the bulk hypervisor call, and
// dispatchBulk is the mode that can actually produce many records from one
// task. --events-only governs the unrelated, out-of-scope event-socket
// embedding (spec.md §1) and is deliberately left recognized-but-unwired,
// the same way --disk-usage-monitor is validated but has no behavior
// attached.
func collectorMode(cfg config.Config) collector.Mode {
	if cfg.BulkSampling {
		return collector.BulkArray
	}
	return collector.PerRecordLines
}

// connectHypervisor is the seam where a real libvirt connection would be
// established (virConnectOpenReadOnly("qemu:///system") in vmon.c). Wiring
// an actual libvirt client library is outside this repository's scope —
// see pkg/hypervisor's package doc — so this always returns a Fake with no
// configured domains; a deployment wiring a real client swaps this single
// call.
func connectHypervisor(cfg config.Config) (hypervisor.Client, error) {
	return hypervisor.NewFake(), nil
}
