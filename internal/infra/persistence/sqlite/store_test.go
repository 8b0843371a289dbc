package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"undetected/pkg/domain"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "runs.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("unexpected path %q", store.Path())
	}
	run := domain.RunRecord{
		ID:         "run-1",
		Kind:       domain.RunEstimate,
		Parameters: map[string]any{"nreps": float64(100)},
		Result:     domain.Table{Header: []string{"year", "S"}, Rows: [][]string{{"1900", "3"}}},
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveRun(ctx, domain.RunRecord{ID: "run-2", Kind: domain.RunCoverage}); err != nil {
		t.Fatalf("save second: %v", err)
	}
	if err := store.SaveRun(ctx, run); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if removed, err := store.DeleteRun(ctx, "run-2"); err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	runs, err := reopened.ListRuns(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Fatalf("expected only run-1 after reopen, got %+v", runs)
	}
	got := runs[0]
	if got.Parameters["nreps"] != float64(100) || got.Result.Rows[0][1] != "3" {
		t.Fatalf("payload not restored: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to survive reopen")
	}
}

func TestStoreRowCountMatchesWorkingSet(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.SaveRun(ctx, domain.RunRecord{ID: id, Kind: domain.RunOmegaSweep}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	var count int
	if err := store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE kind = ?`, string(domain.RunOmegaSweep)).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows, got %d", count)
	}
}
