package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stipend-works/stipend/internal/domain"
)

// decisionRingCap bounds the ephemeral decision history.
const decisionRingCap = 1000

// minReliabilityForRanking filters unreliable workers out of rankings.
const minReliabilityForRanking = 0.30

// Snapshot is the full persistable state of the Outcome Memory.
// The decision ring is deliberately excluded: it is process-lifetime only.
type Snapshot struct {
	Workers   map[string]*WorkerRecord `json:"workers"`
	Tasks     map[int64]TaskRecord     `json:"tasks"`
	TaskOrder []int64                  `json:"task_order"`
	Metrics   StrategyMetrics          `json:"metrics"`
}

// Store persists snapshots. Save must be atomic: either the whole
// snapshot lands or the previous one survives. Load returns (nil, nil)
// for a brand-new store and an error for a corrupted one — a corrupt
// store must never be silently treated as empty.
type Store interface {
	Save(*Snapshot) error
	Load() (*Snapshot, error)
}

// Memory is the Outcome Memory. One instance is owned by the coordinator;
// the RWMutex only guards read access from the HTTP status API.
type Memory struct {
	mu    sync.RWMutex
	store Store

	workers   map[string]*WorkerRecord
	tasks     map[int64]TaskRecord
	taskOrder []int64 // chronological, for early/recent trend splits
	metrics   StrategyMetrics
	decisions []DecisionRecord
}

// Load reconstructs the memory from the store. Fails loudly on a
// corrupted store rather than starting from empty state.
func Load(store Store) (*Memory, error) {
	m := &Memory{
		store:   store,
		workers: make(map[string]*WorkerRecord),
		tasks:   make(map[int64]TaskRecord),
	}

	snap, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load outcome memory: %w", err)
	}
	if snap != nil {
		m.workers = snap.Workers
		m.tasks = snap.Tasks
		m.taskOrder = snap.TaskOrder
		m.metrics = snap.Metrics
		if m.workers == nil {
			m.workers = make(map[string]*WorkerRecord)
		}
		if m.tasks == nil {
			m.tasks = make(map[int64]TaskRecord)
		}
	}
	return m, nil
}

// GetOrCreateWorker returns a copy of the worker record, creating a
// neutral one on first reference. Never fails.
func (m *Memory) GetOrCreateWorker(address string) WorkerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.getOrCreateLocked(address)
}

func (m *Memory) getOrCreateLocked(address string) *WorkerRecord {
	if w, ok := m.workers[address]; ok {
		return w
	}
	w := NewWorkerRecord(address)
	m.workers[address] = w
	return w
}

// SyncReliability overwrites a worker's reliability with the ledger's
// view (already converted to [0,1]). Called before each decision so the
// learner works from the authoritative score.
func (m *Memory) SyncReliability(address string, reliability float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.getOrCreateLocked(address)
	if w.Reliability == reliability {
		return nil // no mutation, no flush
	}
	w.Reliability = clamp01(reliability)
	return m.flushLocked()
}

// CategoryScore returns the learned category score for a worker, and
// whether the worker has any record at all.
func (m *Memory) CategoryScore(address string, cat domain.TaskCategory) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[address]
	if !ok {
		return 0, false
	}
	return w.CategoryScore(cat), true
}

// RecordOutcome appends the task to history, updates the assigned
// worker's record and the strategy metrics, then flushes. Recording is
// idempotent per task id: a second call for an already-recorded task is
// a no-op and returns false.
func (m *Memory) RecordOutcome(o domain.Outcome) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.tasks[o.TaskID]; seen {
		return false, nil
	}

	m.tasks[o.TaskID] = TaskRecord{
		TaskID:          o.TaskID,
		Category:        o.Category,
		Worker:          o.Worker,
		ProposedPayment: o.Payment,
		ActualPayment:   o.Payment,
		Success:         o.Success,
		CreatedAt:       o.CreatedAt,
		CompletedAt:     o.CompletedAt,
		CompletionSecs:  o.CompletionTime.Seconds(),
	}
	m.taskOrder = append(m.taskOrder, o.TaskID)

	w := m.getOrCreateLocked(o.Worker)
	w.Update(o.Success, o.Category, o.Payment, o.CompletionTime)

	m.metrics.Update(o.Success, o.Payment)

	return true, m.flushLocked()
}

// RecordDecision appends to the bounded decision ring. Decisions are
// ephemeral and never persisted.
func (m *Memory) RecordDecision(d DecisionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decisions = append(m.decisions, d)
	if len(m.decisions) > decisionRingCap {
		m.decisions = m.decisions[len(m.decisions)-decisionRingCap:]
	}
}

// RecentDecisions returns up to limit most recent decisions, newest last.
func (m *Memory) RecentDecisions(limit int) []DecisionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.decisions) {
		limit = len(m.decisions)
	}
	out := make([]DecisionRecord, limit)
	copy(out, m.decisions[len(m.decisions)-limit:])
	return out
}

// BestWorkersFor ranks workers for a category by
// 0.4*reliability + 0.4*category_score + 0.2*success_rate, descending.
// Workers below 0.30 reliability are skipped. Ties keep insertion order.
func (m *Memory) BestWorkersFor(cat domain.TaskCategory, limit int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		address string
		score   float64
		order   int
	}

	var ranked []scored
	order := make(map[string]int, len(m.taskOrder))
	for i, id := range m.taskOrder {
		if t, ok := m.tasks[id]; ok {
			if _, seen := order[t.Worker]; !seen {
				order[t.Worker] = i
			}
		}
	}

	for addr, w := range m.workers {
		if w.Reliability < minReliabilityForRanking {
			continue
		}
		score := 0.4*w.Reliability + 0.4*w.CategoryScore(cat) + 0.2*w.SuccessRate()
		o, ok := order[addr]
		if !ok {
			o = len(m.taskOrder) // never-seen workers sort after seen ones on ties
		}
		ranked = append(ranked, scored{address: addr, score: score, order: o})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.address
	}
	return out
}

// WorkerCount returns the number of known workers.
func (m *Memory) WorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// TaskCount returns the number of recorded task outcomes.
func (m *Memory) TaskCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

// Metrics returns a copy of the strategy metrics singleton.
func (m *Memory) Metrics() StrategyMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// flushLocked writes the full state to the store. Callers hold mu.
func (m *Memory) flushLocked() error {
	snap := &Snapshot{
		Workers:   m.workers,
		Tasks:     m.tasks,
		TaskOrder: m.taskOrder,
		Metrics:   m.metrics,
	}
	if err := m.store.Save(snap); err != nil {
		return fmt.Errorf("flush outcome memory: %w", err)
	}
	return nil
}
