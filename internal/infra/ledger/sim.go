package ledger

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stipend-works/stipend/internal/domain"
)

// SimConfig configures the in-process simulated ledger.
type SimConfig struct {
	InitialFunds    float64 // treasury balance at genesis
	DailyLimit      float64 // max spend per calendar day
	MaxSpendPerTask float64 // hard per-task ceiling enforced on proposals
	Seed            int64   // 0 = time-seeded
}

// DefaultSimConfig returns simulation defaults.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		InitialFunds:    1000,
		DailyLimit:      100,
		MaxSpendPerTask: 10,
	}
}

// simWorker pairs a ledger profile with a hidden quality parameter.
type simWorker struct {
	profile     domain.WorkerProfile
	successRate float64 // probability a submission carries a valid result
}

// Sim is an in-process ledger used for development, the simulate
// command, and tests. It enforces the same rules a real ledger would:
// budget reservations, daily spending limits, per-task ceilings, and
// idempotent rejection of duplicate assignments.
type Sim struct {
	mu  sync.Mutex
	cfg SimConfig
	rng *rand.Rand
	now func() time.Time // injectable clock for tests

	nextID    int64
	tasks     map[int64]*domain.Task
	proposals map[int64]float64 // taskID -> reserved payment

	workers map[string]*simWorker

	funds      float64
	reserved   float64
	dailySpent float64
	spendDay   time.Time
}

// NewSim creates a simulated ledger.
func NewSim(cfg SimConfig) *Sim {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sim{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(seed)),
		now:       time.Now,
		tasks:     make(map[int64]*domain.Task),
		proposals: make(map[int64]float64),
		workers:   make(map[string]*simWorker),
		funds:     cfg.InitialFunds,
	}
}

// SetClock overrides the wall clock. Test hook.
func (s *Sim) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// RegisterWorker adds a worker with a hidden success probability.
func (s *Sim) RegisterWorker(address string, successRate float64, cats ...domain.TaskCategory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workers[address] = &simWorker{
		profile: domain.WorkerProfile{
			Address:           address,
			Active:            true,
			RegisteredAt:      s.now(),
			ReliabilityBP:     5000, // neutral until outcomes accrue
			AllowedCategories: cats,
		},
		successRate: successRate,
	}
}

// CreateTask opens a new task and returns its id.
func (s *Sim) CreateTask(cat domain.TaskCategory, maxPayment float64, deadline time.Time, rule string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.tasks[id] = &domain.Task{
		ID:               id,
		Category:         cat,
		Status:           domain.TaskCreated,
		Creator:          "sim-user",
		MaxPayment:       maxPayment,
		Deadline:         deadline,
		CreatedAt:        s.now(),
		ContentHash:      uuid.New().String(),
		VerificationRule: rule,
	}
	return id
}

// Advance simulates one round of worker activity: every assigned task
// gets a submission. Good workers attach a valid result fingerprint;
// bad ones submit with an empty one, which rule-based verification
// rejects.
func (s *Sim) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.Status != domain.TaskAssigned {
			continue
		}
		w := s.workers[t.AssignedWorker]
		if w != nil && s.rng.Float64() < w.successRate {
			t.ResultHash = uuid.New().String()
		} else {
			t.ResultHash = ""
		}
		t.Status = domain.TaskSubmitted
	}
}

// ─── Client implementation ──────────────────────────────────────────────────

// OpenTaskIDs lists CREATED tasks in id order.
func (s *Sim) OpenTaskIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id := int64(1); id <= s.nextID; id++ {
		if t, ok := s.tasks[id]; ok && t.Status == domain.TaskCreated {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Task returns a snapshot copy of one task.
func (s *Sim) Task(ctx context.Context, id int64) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// TaskCount returns the highest task id ever created.
func (s *Sim) TaskCount(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID, nil
}

// AvailableBudget returns the treasury view.
func (s *Sim) AvailableBudget(ctx context.Context) (Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Budget{
		Total:     s.funds,
		Reserved:  s.reserved,
		Available: s.funds - s.reserved,
	}, nil
}

// RemainingDailyBudget returns today's remaining allowance.
func (s *Sim) RemainingDailyBudget(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollDayLocked()
	remaining := s.cfg.DailyLimit - s.dailySpent
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ProposeAssignment validates and applies an assignment request.
// Rejections return (false, reason, nil); duplicates are rejected
// idempotently because an assigned task is no longer open.
func (s *Sim) ProposeAssignment(ctx context.Context, taskID int64, worker string, payment float64) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return false, domain.ErrTaskNotFound.Error(), nil
	}
	if t.Status != domain.TaskCreated {
		return false, domain.ErrTaskNotOpen.Error(), nil
	}
	if t.Expired(s.now()) {
		t.Status = domain.TaskCancelled
		return false, "task deadline passed", nil
	}
	if payment > t.MaxPayment || (s.cfg.MaxSpendPerTask > 0 && payment > s.cfg.MaxSpendPerTask) {
		return false, "payment exceeds ceiling", nil
	}
	if payment > s.funds-s.reserved {
		return false, domain.ErrInsufficientBudget.Error(), nil
	}
	s.rollDayLocked()
	if s.dailySpent+payment > s.cfg.DailyLimit {
		return false, domain.ErrDailyBudgetExceeded.Error(), nil
	}

	w, ok := s.workers[worker]
	if !ok {
		return false, domain.ErrWorkerNotFound.Error(), nil
	}
	if !w.profile.CanWork(t.Category) {
		return false, domain.ErrWorkerNotEligible.Error(), nil
	}

	s.reserved += payment
	s.proposals[taskID] = payment
	t.AssignedWorker = worker
	t.Status = domain.TaskAssigned
	return true, "assigned", nil
}

// SubmitVerdict settles a submitted task: acceptance pays the worker
// out of the reservation, rejection releases it.
func (s *Sim) SubmitVerdict(ctx context.Context, taskID int64, accepted bool) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return false, domain.ErrTaskNotFound.Error(), nil
	}
	if t.Status != domain.TaskSubmitted {
		return false, domain.ErrTaskNotSubmitted.Error(), nil
	}

	payment := s.proposals[taskID]
	delete(s.proposals, taskID)
	s.reserved -= payment
	t.CompletedAt = s.now()

	w := s.workers[t.AssignedWorker]

	if accepted {
		s.rollDayLocked()
		s.funds -= payment
		s.dailySpent += payment
		t.ActualPayment = payment
		t.Status = domain.TaskCompleted
		if w != nil {
			w.profile.TotalTasks++
			w.profile.SuccessfulTasks++
			w.profile.TotalEarnings += payment
			w.profile.LastTaskAt = s.now()
			s.adjustReliabilityLocked(w, true)
		}
		return true, "completed", nil
	}

	t.Status = domain.TaskFailed
	if w != nil {
		w.profile.TotalTasks++
		w.profile.LastTaskAt = s.now()
		s.adjustReliabilityLocked(w, false)
	}
	return true, "failed", nil
}

// EligibleWorkers lists active workers registered for the category.
func (s *Sim) EligibleWorkers(ctx context.Context, cat domain.TaskCategory) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, w := range s.workers {
		if w.profile.Active && w.profile.CanWork(cat) {
			out = append(out, w.profile.Address)
		}
	}
	sort.Strings(out) // deterministic order for reproducible runs
	return out, nil
}

// WorkerProfile returns a snapshot copy of the ledger worker record.
func (s *Sim) WorkerProfile(ctx context.Context, address string) (*domain.WorkerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[address]
	if !ok {
		return nil, domain.ErrWorkerNotFound
	}
	cp := w.profile
	return &cp, nil
}

// Connected always succeeds for the in-process ledger.
func (s *Sim) Connected(ctx context.Context) bool { return true }

// ─── Internal ───────────────────────────────────────────────────────────────

// adjustReliabilityLocked mirrors a basis-point reliability score the
// way an on-chain registry would: +250bp on success, -500bp on failure.
func (s *Sim) adjustReliabilityLocked(w *simWorker, success bool) {
	if success {
		w.profile.ReliabilityBP += 250
	} else {
		w.profile.ReliabilityBP -= 500
	}
	if w.profile.ReliabilityBP > 10000 {
		w.profile.ReliabilityBP = 10000
	}
	if w.profile.ReliabilityBP < 0 {
		w.profile.ReliabilityBP = 0
	}
}

// rollDayLocked resets the daily spend counter on a date change.
func (s *Sim) rollDayLocked() {
	today := s.now().Truncate(24 * time.Hour)
	if !today.Equal(s.spendDay) {
		s.spendDay = today
		s.dailySpent = 0
	}
}
