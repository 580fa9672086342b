// Package runlog implements the append-only execution log that is the sole
// ground truth for phase timing. The line format is stable: labeling of
// already-generated runs depends on being able to re-parse old logs.
//
//	<rfc3339nano> <event> <phase_id> <label>
package runlog

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"TraceForge/internal/model"
)

// EventKind is the kind of an execution log entry.
type EventKind string

const (
	EventPhaseStart EventKind = "phase_start"
	EventPhaseEnd   EventKind = "phase_end"
	// EventPhaseFault marks an adapter failure inside the current phase.
	EventPhaseFault EventKind = "phase_fault"
)

// Entry is a single execution log record.
type Entry struct {
	Timestamp time.Time
	Event     EventKind
	PhaseID   int
	Label     model.Label
}

// Writer appends entries to the execution log. The scheduler is the only
// writer; each entry is synced to disk so the log survives a crash
// mid-run.
type Writer struct {
	f *os.File
}

// NewWriter opens (or creates) the execution log at path for appending.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open execution log: %w", err)
	}
	return &Writer{f: f}, nil
}

// Append writes one entry and syncs it to disk before returning.
func (w *Writer) Append(e Entry) error {
	line := fmt.Sprintf("%s %s %d %s\n",
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.Event, e.PhaseID, e.Label)
	if _, err := w.f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append to execution log: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync execution log: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// ReadAll parses the execution log at path. Unparseable lines are skipped
// and reported as fault notes rather than aborting: a partially corrupt log
// still yields the intervals that can be trusted.
func ReadAll(path string) ([]Entry, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read execution log: %w", err)
	}

	var entries []Entry
	var faults []string
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			faults = append(faults, fmt.Sprintf("line %d: %v", i+1, err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, faults, nil
}

func parseLine(line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Entry{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	ts, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return Entry{}, fmt.Errorf("bad timestamp %q: %w", fields[0], err)
	}
	kind := EventKind(fields[1])
	switch kind {
	case EventPhaseStart, EventPhaseEnd, EventPhaseFault:
	default:
		return Entry{}, fmt.Errorf("unknown event kind %q", fields[1])
	}
	id, err := strconv.Atoi(fields[2])
	if err != nil {
		return Entry{}, fmt.Errorf("bad phase id %q: %w", fields[2], err)
	}
	return Entry{Timestamp: ts, Event: kind, PhaseID: id, Label: model.Label(fields[3])}, nil
}
