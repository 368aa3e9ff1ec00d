// Package sqlite provides the durable store for the Outcome Memory.
// Uses WAL mode for crash-safe writes; every flush replaces the full
// snapshot inside one transaction, so a crash leaves either the old
// state or the new one, never a partial write.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/stipend-works/stipend/internal/app/memory"
	"github.com/stipend-works/stipend/internal/domain"
)

// metricsKey is the agent_state row holding the StrategyMetrics JSON.
const metricsKey = "strategy_metrics"

// DB wraps a SQLite connection with WAL mode and migrations.
// It implements memory.Store.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS worker_records (
			address             TEXT PRIMARY KEY,
			total_tasks         INTEGER NOT NULL,
			successful_tasks    INTEGER NOT NULL,
			failed_tasks        INTEGER NOT NULL,
			total_earnings      REAL NOT NULL,
			avg_completion_secs REAL NOT NULL,
			reliability         REAL NOT NULL,
			category_scores     TEXT NOT NULL,
			last_task_at        INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS task_history (
			task_id          INTEGER PRIMARY KEY,
			seq              INTEGER NOT NULL,
			category         INTEGER NOT NULL,
			worker           TEXT NOT NULL,
			proposed_payment REAL NOT NULL,
			actual_payment   REAL NOT NULL,
			success          BOOLEAN NOT NULL,
			created_at       INTEGER NOT NULL,
			completed_at     INTEGER NOT NULL,
			completion_secs  REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_seq ON task_history(seq)`,
		`CREATE INDEX IF NOT EXISTS idx_history_worker ON task_history(worker)`,

		`CREATE TABLE IF NOT EXISTS agent_state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── memory.Store ───────────────────────────────────────────────────────────

// Save replaces the stored snapshot atomically.
func (d *DB) Save(snap *memory.Snapshot) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM worker_records`); err != nil {
		return err
	}
	for _, w := range snap.Workers {
		scores, err := json.Marshal(w.CategoryScores)
		if err != nil {
			return fmt.Errorf("encode category scores: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO worker_records (address, total_tasks, successful_tasks, failed_tasks,
				total_earnings, avg_completion_secs, reliability, category_scores, last_task_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			w.Address, w.TotalTasks, w.SuccessfulTasks, w.FailedTasks,
			w.TotalEarnings, w.AvgCompletionSecs, w.Reliability, string(scores),
			nullableNano(w.LastTaskAt),
		)
		if err != nil {
			return fmt.Errorf("insert worker %s: %w", w.Address, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM task_history`); err != nil {
		return err
	}
	for seq, id := range snap.TaskOrder {
		t, ok := snap.Tasks[id]
		if !ok {
			continue
		}
		_, err := tx.Exec(
			`INSERT INTO task_history (task_id, seq, category, worker, proposed_payment,
				actual_payment, success, created_at, completed_at, completion_secs)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.TaskID, seq, int(t.Category), t.Worker, t.ProposedPayment,
			t.ActualPayment, t.Success, nullableNano(t.CreatedAt),
			nullableNano(t.CompletedAt), t.CompletionSecs,
		)
		if err != nil {
			return fmt.Errorf("insert task %d: %w", t.TaskID, err)
		}
	}

	metrics, err := json.Marshal(snap.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO agent_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		metricsKey, string(metrics),
	)
	if err != nil {
		return fmt.Errorf("store metrics: %w", err)
	}

	return tx.Commit()
}

// Load reconstructs the last flushed snapshot. Returns (nil, nil) for a
// brand-new store, and a wrapped domain.ErrStoreCorrupted when stored
// state cannot be decoded — corruption is fatal at startup, not an
// invitation to start from scratch.
func (d *DB) Load() (*memory.Snapshot, error) {
	snap := &memory.Snapshot{
		Workers: make(map[string]*memory.WorkerRecord),
		Tasks:   make(map[int64]memory.TaskRecord),
	}

	rows, err := d.db.Query(
		`SELECT address, total_tasks, successful_tasks, failed_tasks, total_earnings,
			avg_completion_secs, reliability, category_scores, last_task_at
		 FROM worker_records`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var w memory.WorkerRecord
		var scores string
		var lastTask int64
		err := rows.Scan(&w.Address, &w.TotalTasks, &w.SuccessfulTasks, &w.FailedTasks,
			&w.TotalEarnings, &w.AvgCompletionSecs, &w.Reliability, &scores, &lastTask)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scores), &w.CategoryScores); err != nil {
			return nil, fmt.Errorf("%w: worker %s category scores: %v", domain.ErrStoreCorrupted, w.Address, err)
		}
		if w.CategoryScores == nil {
			w.CategoryScores = make(map[domain.TaskCategory]float64)
		}
		if lastTask != 0 {
			w.LastTaskAt = time.Unix(0, lastTask).UTC()
		}
		snap.Workers[w.Address] = &w
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trows, err := d.db.Query(
		`SELECT task_id, category, worker, proposed_payment, actual_payment, success,
			created_at, completed_at, completion_secs
		 FROM task_history ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer trows.Close()
	for trows.Next() {
		var t memory.TaskRecord
		var cat int
		var createdAt, completedAt int64
		err := trows.Scan(&t.TaskID, &cat, &t.Worker, &t.ProposedPayment,
			&t.ActualPayment, &t.Success, &createdAt, &completedAt, &t.CompletionSecs)
		if err != nil {
			return nil, err
		}
		t.Category = domain.TaskCategory(cat)
		if createdAt != 0 {
			t.CreatedAt = time.Unix(0, createdAt).UTC()
		}
		if completedAt != 0 {
			t.CompletedAt = time.Unix(0, completedAt).UTC()
		}
		snap.Tasks[t.TaskID] = t
		snap.TaskOrder = append(snap.TaskOrder, t.TaskID)
	}
	if err := trows.Err(); err != nil {
		return nil, err
	}

	var metrics string
	err = d.db.QueryRow(`SELECT value FROM agent_state WHERE key = ?`, metricsKey).Scan(&metrics)
	switch {
	case err == sql.ErrNoRows:
		if len(snap.Workers) == 0 && len(snap.Tasks) == 0 {
			return nil, nil // brand-new store
		}
		return nil, fmt.Errorf("%w: worker/task rows present but no metrics", domain.ErrStoreCorrupted)
	case err != nil:
		return nil, err
	}
	if err := json.Unmarshal([]byte(metrics), &snap.Metrics); err != nil {
		return nil, fmt.Errorf("%w: metrics: %v", domain.ErrStoreCorrupted, err)
	}

	return snap, nil
}

func nullableNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
