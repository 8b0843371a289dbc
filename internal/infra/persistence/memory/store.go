// Package memory provides an in-memory run store used for tests, ephemeral
// CLI sessions and as the working set of the durable backends.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"undetected/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.RunStore = (*Store)(nil)

// Snapshot is the serialisable state of the store.
type Snapshot struct {
	Version int                `json:"version"`
	Runs    []domain.RunRecord `json:"runs"`
}

// snapshotVersion is bumped when RunRecord changes shape.
const snapshotVersion = 1

// Store keeps run records in a map guarded by a RWMutex.
type Store struct {
	mu    sync.RWMutex
	runs  map[string]domain.RunRecord
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		runs:  make(map[string]domain.RunRecord),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SaveRun stores a new run. Runs without a creation time are stamped.
func (s *Store) SaveRun(_ context.Context, run domain.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("memory store: run id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("memory store: run %s already exists", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.nowFn()
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun returns a copy of the run with the given id.
func (s *Store) GetRun(_ context.Context, id string) (domain.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

// ListRuns returns runs of the given kind, or all runs when kind is empty,
// newest first.
func (s *Store) ListRuns(_ context.Context, kind domain.RunKind) ([]domain.RunRecord, error) {
	s.mu.RLock()
	out := make([]domain.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		if kind != "" && run.Kind != kind {
			continue
		}
		out = append(out, cloneRun(run))
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

// DeleteRun removes a run and reports whether it existed.
func (s *Store) DeleteRun(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return false, nil
	}
	delete(s.runs, id)
	return true, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Version: snapshotVersion, Runs: make([]domain.RunRecord, 0, len(s.runs))}
	for _, run := range s.runs {
		snap.Runs = append(snap.Runs, cloneRun(run))
	}
	sortNewestFirst(snap.Runs)
	return snap
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	snapshot = migrateSnapshot(snapshot)
	runs := make(map[string]domain.RunRecord, len(snapshot.Runs))
	for _, run := range snapshot.Runs {
		runs[run.ID] = cloneRun(run)
	}
	s.mu.Lock()
	s.runs = runs
	s.mu.Unlock()
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider, mainly for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

// migrateSnapshot drops runs without an id and stamps the current version.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	out := Snapshot{Version: snapshotVersion, Runs: make([]domain.RunRecord, 0, len(snapshot.Runs))}
	for _, run := range snapshot.Runs {
		if run.ID == "" {
			continue
		}
		out.Runs = append(out.Runs, run)
	}
	return out
}

func sortNewestFirst(runs []domain.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
}

func cloneRun(r domain.RunRecord) domain.RunRecord {
	if r.Parameters != nil {
		params := make(map[string]any, len(r.Parameters))
		for k, v := range r.Parameters {
			params[k] = v
		}
		r.Parameters = params
	}
	r.Result.Header = append([]string(nil), r.Result.Header...)
	if r.Result.Rows != nil {
		rows := make([][]string, len(r.Result.Rows))
		for i, row := range r.Result.Rows {
			rows[i] = append([]string(nil), row...)
		}
		r.Result.Rows = rows
	}
	if r.Detail != nil {
		r.Detail = append(json.RawMessage(nil), r.Detail...)
	}
	return r
}
