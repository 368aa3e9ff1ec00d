package strategy

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stipend-works/stipend/internal/app/memory"
	"github.com/stipend-works/stipend/internal/domain"
)

// Exploration schedule: after the warm-up period every learn call decays
// the exploration rate multiplicatively down to the floor.
const (
	explorationWarmup     = 100
	explorationDecay      = 0.999
	explorationFloor      = 0.05
	explorationConfidence = 0.3
)

// Config tunes the decision engine.
type Config struct {
	ExplorationRate float64 // initial probability of a random pick (default 0.2)
	LearningRate    float64 // pricer step size (default 0.1)
	Seed            int64   // 0 = time-seeded; fixed for reproducible tests
}

// Stats is a read-only snapshot of engine learning state.
type Stats struct {
	DecisionsMade       int     `json:"decisions_made"`
	SuccessfulDecisions int     `json:"successful_decisions"`
	SuccessRate         float64 `json:"success_rate"`
	ExplorationRate     float64 `json:"exploration_rate"`
	TotalBanditPulls    int     `json:"total_bandit_pulls"`
	PaymentModels       int     `json:"payment_models"`
}

// Engine composes the bandit and the pricer behind a single
// decide/learn surface. It owns the exploration-rate decay and the
// decision bookkeeping. One engine instance is owned by the coordinator;
// the mutex only guards stat reads from the HTTP API.
type Engine struct {
	mu     sync.Mutex
	mem    *memory.Memory
	bandit *Bandit
	pricer *Pricer
	rng    *rand.Rand

	explorationRate     float64
	decisionsMade       int
	successfulDecisions int
}

// New creates an engine bound to an outcome memory.
func New(mem *memory.Memory, cfg Config) *Engine {
	if cfg.ExplorationRate <= 0 {
		cfg.ExplorationRate = 0.2
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.1
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Engine{
		mem:             mem,
		bandit:          NewBandit(),
		pricer:          NewPricer(cfg.LearningRate),
		rng:             rand.New(rand.NewSource(seed)),
		explorationRate: cfg.ExplorationRate,
	}
}

// Decide picks a worker and a price for a task. Returns nil only when
// the eligible list is empty — an expected steady-state condition, not
// an error.
//
// With probability explorationRate a worker is picked uniformly at
// random (confidence fixed at 0.3); otherwise the UCB1 bandit selects,
// blending learned category priors. When advisory scores are supplied
// they replace the category prior inside the bandit's own 0.7/0.3
// blend — one fixed ratio rather than a second tunable weight.
func (e *Engine) Decide(taskID int64, cat domain.TaskCategory, maxPayment float64, eligible []string, advisory map[string]float64) *domain.Proposal {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(eligible) == 0 {
		return nil
	}

	e.decisionsMade++

	var worker string
	var confidence float64
	exploration := e.rng.Float64() < e.explorationRate

	if exploration {
		worker = eligible[e.rng.Intn(len(eligible))]
		confidence = explorationConfidence
	} else {
		worker, confidence = e.bandit.Select(eligible, e.scorer(advisory), cat)
	}

	reliability := e.mem.GetOrCreateWorker(worker).Reliability
	payment := e.pricer.OptimalPayment(cat, maxPayment, reliability)

	e.mem.RecordDecision(memory.DecisionRecord{
		ID:          uuid.New().String(),
		TaskID:      taskID,
		Category:    cat,
		Worker:      worker,
		Payment:     payment,
		Confidence:  confidence,
		Exploration: exploration,
		At:          time.Now(),
	})

	return &domain.Proposal{
		TaskID:      taskID,
		Category:    cat,
		Worker:      worker,
		Payment:     payment,
		Confidence:  confidence,
		Exploration: exploration,
	}
}

// scorer returns the prior source for bandit selection: advisory scores
// when present, the outcome memory's category scores otherwise.
func (e *Engine) scorer(advisory map[string]float64) CategoryScorer {
	if len(advisory) == 0 {
		return ScorerFunc(e.mem.CategoryScore)
	}
	return ScorerFunc(func(worker string, cat domain.TaskCategory) (float64, bool) {
		if s, ok := advisory[worker]; ok {
			return s, true
		}
		return e.mem.CategoryScore(worker, cat)
	})
}

// Learn feeds one terminal outcome back into the bandit and the pricer.
// Reward is 1 - 0.3*(payment/ceiling) on success (efficiency bonus) and
// -0.5 on failure. After the warm-up of 100 decisions each call decays
// the exploration rate by 0.999, floored at 0.05, so exploration is
// monotonically non-increasing.
func (e *Engine) Learn(cat domain.TaskCategory, worker string, payment, maxPayment float64, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var reward float64
	if success {
		reward = 1.0
		if maxPayment > 0 {
			reward = 1.0 - (payment/maxPayment)*0.3
		}
		e.successfulDecisions++
	} else {
		reward = -0.5
	}

	e.bandit.Update(worker, reward)
	e.pricer.Update(cat, payment, success, maxPayment)

	if e.decisionsMade > explorationWarmup && e.explorationRate > explorationFloor {
		e.explorationRate *= explorationDecay
		if e.explorationRate < explorationFloor {
			e.explorationRate = explorationFloor
		}
	}
}

// ExplorationRate returns the current exploration probability.
func (e *Engine) ExplorationRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.explorationRate
}

// Stats returns current learning statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		DecisionsMade:       e.decisionsMade,
		SuccessfulDecisions: e.successfulDecisions,
		ExplorationRate:     e.explorationRate,
		TotalBanditPulls:    e.bandit.TotalPulls(),
		PaymentModels:       e.pricer.ModelCount(),
	}
	if e.decisionsMade > 0 {
		s.SuccessRate = float64(e.successfulDecisions) / float64(e.decisionsMade)
	}
	return s
}
