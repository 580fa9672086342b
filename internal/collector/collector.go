// Package collector provides the two telemetry collectors that run for the
// entire span of an experiment. Collectors are started once before the
// first phase and stopped once after the last, so boundary-adjacent records
// are never lost to per-phase start/stop races. Each collector owns its
// output sink exclusively.
package collector

import "context"

// Collector is a telemetry source accumulating timestamped raw records.
type Collector interface {
	// Start launches the collector's goroutines. It does not block.
	Start(ctx context.Context) error
	// Stop flushes and closes the collector's sink, returning the number
	// of records written.
	Stop() (int, error)
}
