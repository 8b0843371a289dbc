package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"undetected/pkg/domain"
)

func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestStoreSaveGetList(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.SetNowFunc(fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	first := domain.RunRecord{ID: "a", Kind: domain.RunEstimate, Parameters: map[string]any{"reps": 10}}
	second := domain.RunRecord{ID: "b", Kind: domain.RunCoverage}
	if err := store.SaveRun(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.SaveRun(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, ok, err := store.GetRun(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be stamped")
	}

	all, err := store.ListRuns(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "b" || all[1].ID != "a" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	estimates, _ := store.ListRuns(ctx, domain.RunEstimate)
	if len(estimates) != 1 || estimates[0].ID != "a" {
		t.Fatalf("unexpected kind filter result %+v", estimates)
	}
}

func TestStoreRejectsInvalidSaves(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if err := store.SaveRun(ctx, domain.RunRecord{}); err == nil {
		t.Fatalf("expected error for missing id")
	}
	if err := store.SaveRun(ctx, domain.RunRecord{ID: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveRun(ctx, domain.RunRecord{ID: "x"}); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	run := domain.RunRecord{
		ID:         "r",
		Kind:       domain.RunEstimate,
		Parameters: map[string]any{"alpha": 0.5},
		Result:     domain.Table{Header: []string{"h"}, Rows: [][]string{{"1"}}},
		Detail:     json.RawMessage(`{"k":1}`),
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save: %v", err)
	}
	run.Result.Rows[0][0] = "mutated"
	run.Parameters["alpha"] = 0.9

	got, _, _ := store.GetRun(ctx, "r")
	if got.Result.Rows[0][0] != "1" || got.Parameters["alpha"] != 0.5 {
		t.Fatalf("stored run aliased caller data: %+v", got)
	}
	got.Result.Header[0] = "changed"
	again, _, _ := store.GetRun(ctx, "r")
	if again.Result.Header[0] != "h" {
		t.Fatalf("returned run aliased stored data")
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.SaveRun(ctx, domain.RunRecord{ID: "d"})
	removed, err := store.DeleteRun(ctx, "d")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	removed, _ = store.DeleteRun(ctx, "d")
	if removed {
		t.Fatalf("expected second delete to report missing run")
	}
	if _, ok, _ := store.GetRun(ctx, "d"); ok {
		t.Fatalf("run still present after delete")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSnapshotRoundTripDropsRunsWithoutID(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.SaveRun(ctx, domain.RunRecord{ID: "one", Kind: domain.RunOmegaSweep})
	snap := store.ExportState()
	if snap.Version != snapshotVersion || len(snap.Runs) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	restored := NewStore()
	restored.ImportState(Snapshot{Runs: []domain.RunRecord{
		snap.Runs[0],
		{ID: "sweep", Kind: domain.RunBoundarySweep},
		{Kind: domain.RunEstimate},
	}})
	runs, _ := restored.ListRuns(ctx, "")
	if len(runs) != 2 {
		t.Fatalf("expected id-less run to be dropped, got %d runs", len(runs))
	}
	sweep, ok, _ := restored.GetRun(ctx, "sweep")
	if !ok || sweep.Kind != domain.RunBoundarySweep {
		t.Fatalf("expected sweep run to be restored unchanged, got %+v", sweep)
	}
	if restored.ExportState().Version != snapshotVersion {
		t.Fatalf("expected snapshot version to be stamped")
	}
}

func TestSetNowFuncIgnoresNil(t *testing.T) {
	store := NewStore()
	store.SetNowFunc(nil)
	if store.NowFunc() == nil {
		t.Fatalf("expected default clock to survive nil override")
	}
}
