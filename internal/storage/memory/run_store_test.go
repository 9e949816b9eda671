package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/quake-catalog-crawler/internal/backfill"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	started := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	run := backfill.Run{ID: "run-1", Status: backfill.RunRunning, StartedAt: started}

	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if err := store.CreateRun(ctx, run); err == nil {
		t.Fatal("expected duplicate run error")
	}

	report := backfill.Report{RunID: "run-1", Periods: []backfill.PeriodResult{{Key: "2018_01", Status: backfill.StatusWritten}}}
	if err := store.FinishRun(ctx, "run-1", report, nil, started.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	if err := store.FinishRun(ctx, "run-1", report, nil, started.Add(time.Minute)); err == nil {
		t.Fatal("expected finishing twice to fail")
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != backfill.RunSucceeded || got.Report == nil || got.FinishedAt == nil {
		t.Fatalf("unexpected finished run: %+v", got)
	}
	if len(got.Report.Periods) != 1 {
		t.Fatalf("expected report to persist, got %+v", got.Report)
	}
}

func TestRunStoreFinishFailedRun(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	if err := store.CreateRun(ctx, backfill.Run{ID: "run-1", Status: backfill.RunRunning}); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if err := store.FinishRun(ctx, "run-1", backfill.Report{}, context.Canceled, time.Now()); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	got, _ := store.GetRun(ctx, "run-1")
	if got.Status != backfill.RunCanceled || got.Error == "" {
		t.Fatalf("expected canceled run with error text, got %+v", got)
	}
}

func TestRunStoreUnknownRun(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	if _, err := store.GetRun(context.Background(), "nope"); !errors.Is(err, backfill.ErrRunNotFound) {
		t.Fatalf("GetRun() error = %v, want ErrRunNotFound", err)
	}
	err := store.FinishRun(context.Background(), "nope", backfill.Report{}, nil, time.Now())
	if !errors.Is(err, backfill.ErrRunNotFound) {
		t.Fatalf("FinishRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestRunStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	base := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := backfill.Run{ID: id, Status: backfill.RunRunning, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun(%s) error = %v", id, err)
		}
	}
	_ = store.FinishRun(ctx, "a", backfill.Report{RunID: "a"}, nil, base)

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected page: %+v", runs)
	}

	runs, _ = store.ListRuns(ctx, 2, 2)
	if len(runs) != 1 || runs[0].ID != "a" || runs[0].Report != nil {
		t.Fatalf("expected last run without report, got %+v", runs)
	}

	runs, _ = store.ListRuns(ctx, 2, 10)
	if len(runs) != 0 {
		t.Fatalf("expected empty page past the end, got %+v", runs)
	}
}
