package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"TraceForge/internal/aggregate"
	"TraceForge/internal/audit"
	"TraceForge/internal/config"
	"TraceForge/internal/dataset"
	"TraceForge/internal/labeling"
	"TraceForge/internal/model"
	"TraceForge/internal/reconcile"
	"TraceForge/internal/report"
	"TraceForge/internal/runlog"
	"TraceForge/internal/timeline"
	"TraceForge/pkg/pcap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	runDir := flag.String("run", "", "Run directory containing execution.log and the raw record files.")
	packetsPath := flag.String("packets", "", "Packet records (.csv from the collector or a .pcap capture); defaults to <run>/packets.csv.")
	flowsPath := flag.String("flows", "", "Flow records; defaults to <run>/flows.csv.")
	aggregatedPath := flag.String("aggregated", "", "Aggregated flow records; defaults to <run>/aggregated.csv.")
	flag.Parse()

	if *runDir == "" {
		log.Fatal("The -run flag is required.")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	runID := filepath.Base(*runDir)

	// 1. Parse the execution log into the ground-truth timeline.
	entries, parseFaults, err := runlog.ReadAll(filepath.Join(*runDir, "execution.log"))
	if err != nil {
		log.Fatalf("Failed to read execution log: %v", err)
	}
	tl, err := timeline.FromEntries(entries, parseFaults)
	if err != nil {
		log.Fatalf("Failed to build timeline: %v", err)
	}
	log.Printf("Timeline: %d intervals, %d fault notes, %d adapter faults",
		len(tl.Intervals()), len(tl.Faults()), tl.AdapterFaults())

	// 2. Load the three record streams. The aggregated table is derived
	// from the packet capture when no extractor output is present.
	sets := make(map[model.FormatKind][]model.Record)
	sets[model.FormatPacket] = loadPackets(orDefault(*packetsPath, filepath.Join(*runDir, "packets.csv")))
	flowsFile := orDefault(*flowsPath, filepath.Join(*runDir, "flows.csv"))
	if _, statErr := os.Stat(flowsFile); os.IsNotExist(statErr) {
		log.Printf("No flow table at %s; skipping the flow format", flowsFile)
	} else {
		sets[model.FormatFlow] = loadRecords(model.FormatFlow, flowsFile)
	}
	aggPath := orDefault(*aggregatedPath, filepath.Join(*runDir, "aggregated.csv"))
	if _, statErr := os.Stat(aggPath); os.IsNotExist(statErr) {
		sets[model.FormatAggregated] = aggregate.FromPackets(sets[model.FormatPacket], aggregate.DefaultFlowTimeout)
		log.Printf("No aggregated table at %s; derived %d flows from the packet capture",
			aggPath, len(sets[model.FormatAggregated]))
	} else {
		sets[model.FormatAggregated] = loadRecords(model.FormatAggregated, aggPath)
	}

	// 3. Label and reconcile.
	maxDrift, _ := cfg.MaxClockDrift()
	params := reconcile.ParamsFromConfig(cfg.Labeling.Signatures)
	reconciler, err := reconcile.New(tl, params, maxDrift)
	if err != nil {
		log.Fatalf("Failed to create reconciler: %v", err)
	}
	pipeline := labeling.NewPipeline(tl, reconciler)
	results := pipeline.Process(sets)
	warnings := pipeline.CoverageWarnings(sets)
	for _, w := range warnings {
		log.Printf("Coverage warning: %s", w)
	}

	// 4. Write the labeled tables and the decision trail.
	var allDecisions []model.ReconciliationDecision
	outputs := map[model.FormatKind]string{
		model.FormatPacket:     "labeled_packets.csv",
		model.FormatFlow:       "labeled_flows.csv",
		model.FormatAggregated: "labeled_aggregated_flows.csv",
	}
	for format, res := range results {
		path := filepath.Join(*runDir, outputs[format])
		if err := dataset.WriteLabeled(path, format, res.Records, res.Assignments); err != nil {
			log.Fatalf("Failed to write labeled %s table: %v", format, err)
		}
		log.Printf("%s: %+v -> %s", format, res.Counts, path)
		allDecisions = append(allDecisions, res.Decisions...)
	}
	if err := dataset.WriteDecisions(filepath.Join(*runDir, "decisions.csv"), allDecisions); err != nil {
		log.Fatalf("Failed to write decisions table: %v", err)
	}

	// 5. Build and persist the run report.
	rep := report.Build(runID, results, tl.AdapterFaults(), tl.Faults(), warnings)
	if err := rep.Write(filepath.Join(*runDir, "summary.json")); err != nil {
		log.Fatalf("Failed to write summary: %v", err)
	}

	if cfg.Storage.SQLitePath != "" {
		store, err := audit.Open(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open audit store: %v", err)
		}
		if err := store.AppendDecisions(runID, allDecisions); err != nil {
			log.Fatalf("Failed to persist decisions: %v", err)
		}
		summaryJSON, err := rep.JSON()
		if err != nil {
			log.Fatalf("Failed to encode summary: %v", err)
		}
		if err := store.SaveRun(runID, summaryJSON); err != nil {
			log.Fatalf("Failed to persist run summary: %v", err)
		}
		log.Printf("Decision trail persisted to %s", cfg.Storage.SQLitePath)
	}

	if cfg.Storage.ClickHouse.Enabled {
		writer, err := dataset.NewClickHouseWriter(cfg.Storage.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to create ClickHouse writer: %v", err)
		}
		defer writer.Close()
		ctx := context.Background()
		for format, res := range results {
			if err := writer.WriteLabeled(ctx, runID, format, res.Records, res.Assignments); err != nil {
				log.Fatalf("Failed to write labeled %s records to ClickHouse: %v", format, err)
			}
		}
		if err := writer.WriteDecisions(ctx, runID, allDecisions); err != nil {
			log.Fatalf("Failed to write decisions to ClickHouse: %v", err)
		}
	}

	log.Printf("Labeling of run %s complete: %d decisions recorded.", runID, len(allDecisions))
}

// loadPackets reads packet records from a collector CSV or directly from a
// capture file.
func loadPackets(path string) []model.Record {
	var records []model.Record
	var err error
	if strings.HasSuffix(path, ".pcap") {
		records, err = pcap.ReadFile(path)
	} else {
		records, err = dataset.ReadPacketRecords(path)
	}
	if err != nil {
		log.Fatalf("Failed to load packet records from %s: %v", path, err)
	}
	log.Printf("Loaded %d packet records from %s", len(records), path)
	return records
}

func loadRecords(format model.FormatKind, path string) []model.Record {
	records, err := dataset.ReadRecords(format, path)
	if err != nil {
		log.Fatalf("Failed to load %s records from %s: %v", format, path, err)
	}
	log.Printf("Loaded %d %s records from %s", len(records), format, path)
	return records
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
