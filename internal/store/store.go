package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/avolkov/paperboy/internal/model"
)

// ErrUnavailable wraps any storage failure. The pipeline treats it as fatal:
// without the ledger there is no dedup guarantee, so a run must not proceed.
var ErrUnavailable = errors.New("store unavailable")

// ConflictError reports an attempt to record a different outcome for a paper
// the ledger already holds. This is never auto-resolved; the operator resets
// the record explicitly if the new outcome is the intended one.
type ConflictError struct {
	Key       model.Key
	Existing  model.Outcome
	Attempted model.Outcome
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("outcome conflict for %s: recorded %q, attempted %q", e.Key, e.Existing, e.Attempted)
}

// IsConflict reports whether err is an outcome conflict
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// Store is the processed-paper ledger plus run bookkeeping
type Store interface {
	// Lookup returns the record for key, or nil if the paper is unseen
	Lookup(ctx context.Context, key model.Key) (*model.ProcessedRecord, error)

	// MarkProcessed records an outcome. Re-recording the same outcome for
	// the same key is a no-op; a different outcome returns *ConflictError.
	MarkProcessed(ctx context.Context, rec model.ProcessedRecord) error

	// Reset removes the record for key so it can be reprocessed
	Reset(ctx context.Context, key model.Key) error

	// ResetAll removes every record, forcing full reprocessing
	ResetAll(ctx context.Context) error

	// RecentRecords returns the newest records, most recent first
	RecentRecords(ctx context.Context, limit int) ([]model.ProcessedRecord, error)

	// LogRun persists a run summary
	LogRun(ctx context.Context, run model.RunSummary) error

	// LogMetric records a named counter for a run
	LogMetric(ctx context.Context, runID, name string, value float64) error

	Close() error
}
