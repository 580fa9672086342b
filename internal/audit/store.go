// Package audit persists the reconciliation decision trail and run
// summaries to SQLite. The store is insert-only: decisions are never
// updated or deleted, which is what makes the conservative-preservation
// property independently verifiable after the fact.
package audit

import (
	"fmt"
	"strings"
	"time"

	"TraceForge/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Decision is the stored form of one reconciliation decision.
type Decision struct {
	ID               uint   `gorm:"primaryKey" json:"-"`
	RunID            string `gorm:"index" json:"run_id"`
	RecordID         string `json:"record_id"`
	Format           string `json:"format"`
	PreviousLabel    string `json:"previous_label"`
	NewLabel         string `json:"new_label"`
	ChecksPassed     string `json:"checks_passed"`
	ChecksFailed     string `json:"checks_failed"`
	BoundaryOffsetMs int64  `json:"boundary_offset_ms"`
	DecidedAt        time.Time `json:"decided_at"`
}

// Run is the stored summary of one labeling run.
type Run struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	RunID     string    `gorm:"uniqueIndex" json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Summary   string    `json:"summary"`
}

// Store wraps the SQLite database holding decisions and run summaries.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the store at path and migrates its schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	if err := db.AutoMigrate(&Decision{}, &Run{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit store: %w", err)
	}
	return &Store{db: db}, nil
}

// AppendDecisions inserts the decision trail for a run. Insert only.
func (s *Store) AppendDecisions(runID string, decisions []model.ReconciliationDecision) error {
	if len(decisions) == 0 {
		return nil
	}
	rows := make([]Decision, 0, len(decisions))
	for _, d := range decisions {
		rows = append(rows, Decision{
			RunID:            runID,
			RecordID:         d.RecordID,
			Format:           string(d.Format),
			PreviousLabel:    string(d.PreviousLabel),
			NewLabel:         string(d.NewLabel),
			ChecksPassed:     strings.Join(d.ChecksPassed, "|"),
			ChecksFailed:     strings.Join(d.ChecksFailed, "|"),
			BoundaryOffsetMs: d.BoundaryOffset.Milliseconds(),
			DecidedAt:        d.DecidedAt,
		})
	}
	if err := s.db.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to append decisions: %w", err)
	}
	return nil
}

// SaveRun stores a run's summary JSON.
func (s *Store) SaveRun(runID, summaryJSON string) error {
	run := Run{RunID: runID, CreatedAt: time.Now().UTC(), Summary: summaryJSON}
	if err := s.db.Create(&run).Error; err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	var runs []Run
	if err := s.db.Order("created_at desc").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// RunByID fetches one run summary.
func (s *Store) RunByID(runID string) (*Run, error) {
	var run Run
	if err := s.db.Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch run %s: %w", runID, err)
	}
	return &run, nil
}

// DecisionsForRun fetches a run's decision trail in insertion order.
func (s *Store) DecisionsForRun(runID string) ([]Decision, error) {
	var decisions []Decision
	if err := s.db.Where("run_id = ?", runID).Order("id").Find(&decisions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch decisions for run %s: %w", runID, err)
	}
	return decisions, nil
}
