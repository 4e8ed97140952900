package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avolkov/paperboy/internal/model"
)

// MemoryStore keeps the ledger in process memory. It backs dry runs and
// tests; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[model.Key]model.ProcessedRecord
	runs    map[string]model.RunSummary
	metrics []memoryMetric

	// FailAll makes every call return ErrUnavailable, for fatal-path tests
	FailAll bool
}

type memoryMetric struct {
	runID      string
	name       string
	value      float64
	recordedAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory ledger
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[model.Key]model.ProcessedRecord),
		runs:    make(map[string]model.RunSummary),
	}
}

func (s *MemoryStore) Lookup(ctx context.Context, key model.Key) (*model.ProcessedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailAll {
		return nil, ErrUnavailable
	}
	if rec, ok := s.records[key]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, rec model.ProcessedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return ErrUnavailable
	}
	if existing, ok := s.records[rec.Key]; ok {
		if existing.Outcome == rec.Outcome {
			return nil
		}
		return &ConflictError{Key: rec.Key, Existing: existing.Outcome, Attempted: rec.Outcome}
	}
	s.records[rec.Key] = rec
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context, key model.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return ErrUnavailable
	}
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return ErrUnavailable
	}
	s.records = map[model.Key]model.ProcessedRecord{}
	return nil
}

func (s *MemoryStore) RecentRecords(ctx context.Context, limit int) ([]model.ProcessedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailAll {
		return nil, ErrUnavailable
	}
	if limit <= 0 {
		limit = 50
	}

	records := make([]model.ProcessedRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].FirstSeen.Equal(records[j].FirstSeen) {
			return records[i].FirstSeen.After(records[j].FirstSeen)
		}
		return records[i].Key.String() < records[j].Key.String()
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *MemoryStore) LogRun(ctx context.Context, run model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return ErrUnavailable
	}
	s.runs[run.RunID] = run
	return nil
}

func (s *MemoryStore) LogMetric(ctx context.Context, runID, name string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return ErrUnavailable
	}
	s.metrics = append(s.metrics, memoryMetric{runID: runID, name: name, value: value, recordedAt: time.Now()})
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Runs returns logged run summaries, for tests
func (s *MemoryStore) Runs() []model.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]model.RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	return runs
}
