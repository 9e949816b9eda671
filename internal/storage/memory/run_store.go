package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/quake-catalog-crawler/internal/backfill"
)

// RunStore provides an in-memory history of backfill runs for the API.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]backfill.Run
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]backfill.Run)}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run backfill.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// FinishRun records the report and terminal status of a run.
func (s *RunStore) FinishRun(
	_ context.Context,
	id string,
	report backfill.Report,
	runErr error,
	finished time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return backfill.ErrRunNotFound
	}
	if run.Terminal() {
		return errors.New("run already finished")
	}
	run.Status = backfill.StatusFor(runErr)
	if runErr != nil {
		run.Error = runErr.Error()
	}
	run.FinishedAt = pointerTime(finished)
	run.Report = &report
	s.runs[id] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id string) (backfill.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return backfill.Run{}, backfill.ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first. Reports are omitted from the listing.
func (s *RunStore) ListRuns(_ context.Context, limit, offset int) ([]backfill.Run, error) {
	s.mu.RLock()
	out := make([]backfill.Run, 0, len(s.runs))
	for _, run := range s.runs {
		run.Report = nil
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if offset >= len(out) {
		return []backfill.Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
