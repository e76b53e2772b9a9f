package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	trigger "daq-trigger/internal/trigger/domain"
)

// RunRepository keeps run summaries in memory.
type RunRepository struct {
	mu   sync.RWMutex
	data map[trigger.RunNumber]trigger.RunSummary
}

// NewRunRepository constructs a repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{data: make(map[trigger.RunNumber]trigger.RunSummary)}
}

// RecordStart marks run as running. A restarted run number overwrites the old record.
func (r *RunRepository) RecordStart(ctx context.Context, run trigger.RunNumber, startedAt time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[run] = trigger.RunSummary{
		RunNumber: run,
		Status:    trigger.RunStatusRunning,
		StartedAt: startedAt,
	}
	return nil
}

// RecordSummary stores the final summary of a run.
func (r *RunRepository) RecordSummary(ctx context.Context, summary trigger.RunSummary) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[summary.RunNumber] = summary
	return nil
}

// ListRuns returns up to limit runs, most recently started first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]trigger.RunSummary, error) {
	_ = ctx
	r.mu.RLock()
	result := make([]trigger.RunSummary, 0, len(r.data))
	for _, s := range r.data {
		result = append(result, s)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].RunNumber > result[j].RunNumber
		}
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetRun loads one run.
func (r *RunRepository) GetRun(ctx context.Context, run trigger.RunNumber) (*trigger.RunSummary, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data[run]
	if !ok {
		return nil, trigger.ErrRunNotFound
	}
	return &s, nil
}
