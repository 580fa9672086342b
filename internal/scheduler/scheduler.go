// Package scheduler drives the ordered sequence of traffic phases that
// makes up one experiment run. The scheduler is the single writer of the
// execution log; collectors run concurrently for the whole span and never
// query scheduler state, so the log is the only coupling point.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"TraceForge/internal/collector"
	"TraceForge/internal/model"
	"TraceForge/internal/runlog"
)

// Scheduler executes phases in order on the calling goroutine.
type Scheduler struct {
	phases     []model.Phase
	adapters   []TrafficAdapter
	logw       *runlog.Writer
	collectors []collector.Collector

	settleGap    time.Duration
	graceTimeout time.Duration
}

// New creates a scheduler. Adapters are 1:1 with phases.
func New(phases []model.Phase, adapters []TrafficAdapter, logw *runlog.Writer, collectors []collector.Collector, settleGap, graceTimeout time.Duration) (*Scheduler, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("at least one phase is required")
	}
	if len(phases) != len(adapters) {
		return nil, fmt.Errorf("%d phases but %d adapters", len(phases), len(adapters))
	}
	for _, p := range phases {
		if p.PlannedDuration <= 0 {
			return nil, fmt.Errorf("phase %d: planned duration must be positive", p.ID)
		}
	}
	return &Scheduler{
		phases:       phases,
		adapters:     adapters,
		logw:         logw,
		collectors:   collectors,
		settleGap:    settleGap,
		graceTimeout: graceTimeout,
	}, nil
}

// Run executes every phase in order. Collectors are started once before
// the first phase and stopped once after the last, so records near phase
// boundaries are never lost to start/stop races. An adapter failure is
// confined to its phase; cancelling ctx aborts the run at the next phase
// boundary.
func (s *Scheduler) Run(ctx context.Context) error {
	for i, c := range s.collectors {
		if err := c.Start(ctx); err != nil {
			// Stop whatever already started before bailing out.
			for j := 0; j < i; j++ {
				s.collectors[j].Stop()
			}
			return fmt.Errorf("failed to start collector: %w", err)
		}
	}
	defer func() {
		// Reverse order: producers stop before the sinks they feed.
		for i := len(s.collectors) - 1; i >= 0; i-- {
			if n, err := s.collectors[i].Stop(); err != nil {
				log.Printf("Collector stop error after %d records: %v", n, err)
			}
		}
	}()

	for i := range s.phases {
		if err := ctx.Err(); err != nil {
			log.Printf("Run aborted at phase boundary %d: %v", i, err)
			return err
		}
		if err := s.runPhase(ctx, &s.phases[i], s.adapters[i]); err != nil {
			return err
		}
		if i < len(s.phases)-1 && s.settleGap > 0 {
			time.Sleep(s.settleGap)
		}
	}
	log.Printf("Run complete: %d phases executed.", len(s.phases))
	return nil
}

// runPhase executes one phase: start entry, adapter for at least the
// planned duration, end entry. Only log-write failures are returned; an
// adapter failure is recorded as phase_fault and the run continues.
func (s *Scheduler) runPhase(ctx context.Context, phase *model.Phase, adapter TrafficAdapter) error {
	phase.ActualStart = time.Now().UTC()
	if err := s.logw.Append(runlog.Entry{
		Timestamp: phase.ActualStart,
		Event:     runlog.EventPhaseStart,
		PhaseID:   phase.ID,
		Label:     phase.Label,
	}); err != nil {
		return err
	}
	log.Printf("Phase %d (%s) started: %s for %s against %s",
		phase.ID, phase.Label, adapter.Name(), phase.PlannedDuration, phase.VictimID)

	adapterErr := s.superviseAdapter(ctx, phase, adapter)
	if adapterErr != nil {
		log.Printf("Phase %d (%s) adapter failed: %v", phase.ID, phase.Label, adapterErr)
		if err := s.logw.Append(runlog.Entry{
			Timestamp: time.Now().UTC(),
			Event:     runlog.EventPhaseFault,
			PhaseID:   phase.ID,
			Label:     phase.Label,
		}); err != nil {
			return err
		}
	}

	phase.ActualEnd = time.Now().UTC()
	if err := s.logw.Append(runlog.Entry{
		Timestamp: phase.ActualEnd,
		Event:     runlog.EventPhaseEnd,
		PhaseID:   phase.ID,
		Label:     phase.Label,
	}); err != nil {
		return err
	}
	log.Printf("Phase %d (%s) ended after %s", phase.ID, phase.Label, phase.ActualEnd.Sub(phase.ActualStart))
	return nil
}

// superviseAdapter blocks until both the planned duration has elapsed and
// the adapter has finished, whichever is later, so the phase interval
// always covers the planned span. A still-running adapter is killed after
// the grace timeout; it cannot hang the run.
func (s *Scheduler) superviseAdapter(ctx context.Context, phase *model.Phase, adapter TrafficAdapter) error {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- adapter.Run(actx)
	}()

	timer := time.NewTimer(phase.PlannedDuration)
	defer timer.Stop()

	var adapterErr error
	finished := false
	for !finished {
		select {
		case adapterErr = <-done:
			finished = true
			// Hold the phase open for the rest of the planned duration.
			<-timer.C
		case <-timer.C:
			// Planned duration elapsed; give the adapter a grace period.
			select {
			case adapterErr = <-done:
			case <-time.After(s.graceTimeout):
				log.Printf("Phase %d (%s): adapter still running after grace timeout, killing",
					phase.ID, phase.Label)
				cancel()
				adapterErr = <-done
			}
			finished = true
		}
	}
	return adapterErr
}
