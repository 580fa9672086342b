package labeling

import (
	"sync"

	"TraceForge/internal/model"
	"TraceForge/internal/reconcile"
	"TraceForge/internal/timeline"
)

// FormatResult bundles one format's fully processed output.
type FormatResult struct {
	Records     []model.Record
	Assignments []model.LabelAssignment
	Decisions   []model.ReconciliationDecision
	Counts      Counts
}

// Pipeline runs the two labeling passes: the interval-match pass and
// conservative reconciliation. The three formats share no mutable state
// and are processed in parallel.
type Pipeline struct {
	engine     *Engine
	reconciler *reconcile.Reconciler
}

// NewPipeline assembles the two-pass pipeline over a timeline.
func NewPipeline(tl *timeline.Timeline, rec *reconcile.Reconciler) *Pipeline {
	return &Pipeline{engine: NewEngine(tl), reconciler: rec}
}

// Process labels and reconciles every format in sets.
func (p *Pipeline) Process(sets map[model.FormatKind][]model.Record) map[model.FormatKind]*FormatResult {
	results := make(map[model.FormatKind]*FormatResult, len(sets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for format, records := range sets {
		wg.Add(1)
		go func(format model.FormatKind, records []model.Record) {
			defer wg.Done()
			initial := p.engine.Label(format, records)
			final, decisions := p.reconciler.Reconcile(records, initial)
			r := &FormatResult{
				Records:     records,
				Assignments: final,
				Decisions:   decisions,
				Counts:      Tally(final),
			}
			mu.Lock()
			results[format] = r
			mu.Unlock()
		}(format, records)
	}
	wg.Wait()
	return results
}

// CoverageWarnings reports intervals with no record of some format.
func (p *Pipeline) CoverageWarnings(sets map[model.FormatKind][]model.Record) []string {
	return p.engine.CheckCoverage(sets)
}
