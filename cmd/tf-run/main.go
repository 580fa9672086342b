package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"TraceForge/internal/collector"
	"TraceForge/internal/config"
	"TraceForge/internal/runlog"
	"TraceForge/internal/scheduler"

	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	runID := uuid.NewString()
	runDir := filepath.Join(cfg.Storage.RootPath, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		log.Fatalf("Failed to create run directory: %v", err)
	}
	log.Printf("Starting run %s in %s", runID, runDir)

	logw, err := runlog.NewWriter(filepath.Join(runDir, "execution.log"))
	if err != nil {
		log.Fatalf("Failed to open execution log: %v", err)
	}
	defer logw.Close()

	phases, err := cfg.BuildPhases()
	if err != nil {
		log.Fatalf("Failed to build phase schedule: %v", err)
	}
	adapters := make([]scheduler.TrafficAdapter, 0, len(phases))
	for i, def := range cfg.Scheduler.Phases {
		adapter, err := scheduler.NewExecAdapter(def.Label, def.Command)
		if err != nil {
			log.Fatalf("Phase %d: %v", i, err)
		}
		adapters = append(adapters, adapter)
	}

	// Both collectors run for the whole span of the run.
	packetSink, err := collector.NewPacketSink(cfg.Collector.Packet, filepath.Join(runDir, "packets.csv"))
	if err != nil {
		log.Fatalf("Failed to create packet sink: %v", err)
	}
	pollInterval, _ := cfg.PollInterval()
	flowPoller, err := collector.NewFlowPoller(cfg.Collector.FlowPoll, pollInterval, filepath.Join(runDir, "flows.csv"))
	if err != nil {
		log.Fatalf("Failed to create flow poller: %v", err)
	}
	// Start order matters: the sink subscribes before the probe publishes,
	// and collectors are stopped in reverse.
	collectors := []collector.Collector{
		packetSink,
		collector.NewPacketProbe(cfg.Collector.Packet),
		flowPoller,
	}

	settleGap, _ := cfg.SettleGap()
	graceTimeout, _ := cfg.GraceTimeout()
	sched, err := scheduler.New(phases, adapters, logw, collectors, settleGap, graceTimeout)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	// SIGINT aborts the run at the next phase boundary; a running phase is
	// never cut short.
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received, aborting at next phase boundary...")
		cancel()
	}()

	if err := sched.Run(ctx); err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	log.Printf("Run %s complete. Label it with: tf-label -config %s -run %s", runID, *configPath, runDir)
}
