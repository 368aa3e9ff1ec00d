package sqlite

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stipend-works/stipend/internal/app/memory"
	"github.com/stipend-works/stipend/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSnapshot() *memory.Snapshot {
	created := time.Date(2026, 8, 1, 9, 30, 0, 123456789, time.UTC)
	completed := created.Add(2 * time.Minute)

	w := memory.NewWorkerRecord("worker-1")
	w.TotalTasks = 3
	w.SuccessfulTasks = 2
	w.FailedTasks = 1
	w.TotalEarnings = 4.5
	w.AvgCompletionSecs = 118.2
	w.Reliability = 0.6
	w.CategoryScores[domain.CatDataAnalysis] = 0.7
	w.LastTaskAt = completed

	snap := &memory.Snapshot{
		Workers: map[string]*memory.WorkerRecord{"worker-1": w},
		Tasks: map[int64]memory.TaskRecord{
			1: {
				TaskID:          1,
				Category:        domain.CatDataAnalysis,
				Worker:          "worker-1",
				ProposedPayment: 1.5,
				ActualPayment:   1.5,
				Success:         true,
				CreatedAt:       created,
				CompletedAt:     completed,
				CompletionSecs:  120,
			},
			2: {
				TaskID:    2,
				Category:  domain.CatResearch,
				Worker:    "worker-1",
				Success:   false,
				CreatedAt: created,
			},
		},
		TaskOrder: []int64{1, 2},
	}
	snap.Metrics.Update(true, 1.5)
	snap.Metrics.Update(false, 0)
	return snap
}

func TestDB_LoadBrandNewStore(t *testing.T) {
	db := newTestDB(t)

	snap, err := db.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if snap != nil {
		t.Errorf("Load() on empty store = %+v, want nil", snap)
	}
}

func TestDB_SaveLoadRoundTrip(t *testing.T) {
	db := newTestDB(t)
	want := testSnapshot()

	if err := db.Save(want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := db.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got == nil {
		t.Fatal("Load() = nil after Save()")
	}

	if !reflect.DeepEqual(got.Workers, want.Workers) {
		t.Errorf("workers drifted:\n got %+v\nwant %+v", got.Workers["worker-1"], want.Workers["worker-1"])
	}
	if !reflect.DeepEqual(got.Tasks, want.Tasks) {
		t.Errorf("tasks drifted:\n got %+v\nwant %+v", got.Tasks, want.Tasks)
	}
	if !reflect.DeepEqual(got.TaskOrder, want.TaskOrder) {
		t.Errorf("task order = %v, want %v", got.TaskOrder, want.TaskOrder)
	}
	if !reflect.DeepEqual(got.Metrics, want.Metrics) {
		t.Errorf("metrics drifted:\n got %+v\nwant %+v", got.Metrics, want.Metrics)
	}
}

func TestDB_SaveReplacesPreviousSnapshot(t *testing.T) {
	db := newTestDB(t)

	if err := db.Save(testSnapshot()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	second := &memory.Snapshot{
		Workers: map[string]*memory.WorkerRecord{"worker-2": memory.NewWorkerRecord("worker-2")},
		Tasks:   map[int64]memory.TaskRecord{},
	}
	if err := db.Save(second); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	got, err := db.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got.Workers) != 1 {
		t.Fatalf("workers after replace = %d, want 1", len(got.Workers))
	}
	if _, ok := got.Workers["worker-2"]; !ok {
		t.Error("replaced snapshot missing worker-2")
	}
	if len(got.Tasks) != 0 {
		t.Errorf("tasks after replace = %d, want 0", len(got.Tasks))
	}
}

func TestDB_LoadCorruptCategoryScores(t *testing.T) {
	db := newTestDB(t)

	_, err := db.db.Exec(
		`INSERT INTO worker_records (address, total_tasks, successful_tasks, failed_tasks,
			total_earnings, avg_completion_secs, reliability, category_scores, last_task_at)
		 VALUES ('bad', 1, 1, 0, 1.0, 10.0, 0.5, 'not-json', 0)`,
	)
	if err != nil {
		t.Fatalf("inject corrupt row: %v", err)
	}

	_, err = db.Load()
	if !errors.Is(err, domain.ErrStoreCorrupted) {
		t.Errorf("Load() error = %v, want ErrStoreCorrupted", err)
	}
}

func TestDB_LoadRowsWithoutMetricsIsCorrupt(t *testing.T) {
	db := newTestDB(t)

	_, err := db.db.Exec(
		`INSERT INTO worker_records (address, total_tasks, successful_tasks, failed_tasks,
			total_earnings, avg_completion_secs, reliability, category_scores, last_task_at)
		 VALUES ('w', 0, 0, 0, 0, 0, 0.5, '{}', 0)`,
	)
	if err != nil {
		t.Fatalf("inject row: %v", err)
	}

	_, err = db.Load()
	if !errors.Is(err, domain.ErrStoreCorrupted) {
		t.Errorf("Load() error = %v, want ErrStoreCorrupted", err)
	}
}

func TestDB_OpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	db1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	if err := db1.Save(testSnapshot()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	db1.Close()

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer db2.Close()

	snap, err := db2.Load()
	if err != nil {
		t.Fatalf("Load() after reopen error: %v", err)
	}
	if snap == nil || len(snap.Workers) != 1 {
		t.Errorf("reopened store lost state: %+v", snap)
	}
}
