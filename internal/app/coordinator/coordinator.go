// Package coordinator implements the task lifecycle controller: a single
// polling loop that pulls open work from the ledger, asks the decision
// engine for proposals, verifies submitted work, and feeds terminal
// outcomes back into the learning state.
//
// Exactly one coordinator instance owns the outcome memory and the
// decision engine. Each tick runs to completion before the next begins;
// the ledger and the advisory service are the only concurrent actors and
// every call to them is bounded by a timeout.
package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/stipend-works/stipend/internal/app/memory"
	"github.com/stipend-works/stipend/internal/app/strategy"
	"github.com/stipend-works/stipend/internal/domain"
	"github.com/stipend-works/stipend/internal/infra/advisory"
	"github.com/stipend-works/stipend/internal/infra/ledger"
	"github.com/stipend-works/stipend/internal/infra/metrics"
)

// advisoryScoreLimit caps how many workers get an advisory fit score per
// decision. The advisory call is the most expensive thing in a tick.
const advisoryScoreLimit = 5

// ─── Configuration ──────────────────────────────────────────────────────────

// Config tunes the polling loop.
type Config struct {
	PollInterval time.Duration // sleep between ticks (default 30s)
	CallTimeout  time.Duration // per-call bound on ledger/advisory calls (default 10s)
	MetricsEvery int           // log a metrics line every N cycles (default 10, 0 disables)
}

// DefaultConfig returns production coordinator defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 30 * time.Second,
		CallTimeout:  10 * time.Second,
		MetricsEvery: 10,
	}
}

// ─── Coordinator ────────────────────────────────────────────────────────────

// Status is a read-only snapshot of the controller for the HTTP API.
type Status struct {
	Cycles          int       `json:"cycles"`
	Proposals       int       `json:"proposals"`
	Verifications   int       `json:"verifications"`
	Outcomes        int       `json:"outcomes"`
	ExplorationRate float64   `json:"exploration_rate"`
	SuccessRate     float64   `json:"success_rate"`
	ROI             float64   `json:"roi"`
	KnownWorkers    int       `json:"known_workers"`
	RecordedTasks   int       `json:"recorded_tasks"`
	LastCycleAt     time.Time `json:"last_cycle_at,omitempty"`
}

// Coordinator is the task lifecycle controller.
type Coordinator struct {
	cfg     Config
	ledger  ledger.Client
	mem     *memory.Memory
	engine  *strategy.Engine
	advisor advisory.Advisor // optional; nil is fully supported

	mu        sync.Mutex
	processed map[int64]bool            // tasks handled at the open phase
	learned   map[int64]bool            // terminal tasks already fed back
	pending   map[int64]domain.Proposal // acked proposals awaiting a terminal state

	cycles        int
	proposals     int
	verifications int
	outcomes      int
	lastCycleAt   time.Time
}

// New creates a coordinator. advisor may be nil.
func New(cfg Config, lg ledger.Client, mem *memory.Memory, engine *strategy.Engine, advisor advisory.Advisor) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Coordinator{
		cfg:       cfg,
		ledger:    lg,
		mem:       mem,
		engine:    engine,
		advisor:   advisor,
		processed: make(map[int64]bool),
		learned:   make(map[int64]bool),
		pending:   make(map[int64]domain.Proposal),
	}
}

// Run executes the polling loop until ctx is cancelled. Returns an error
// only when the ledger is unreachable at startup; cancellation is a
// clean shutdown.
func (c *Coordinator) Run(ctx context.Context) error {
	cctx, cancel := c.bounded(ctx)
	connected := c.ledger.Connected(cctx)
	cancel()
	if !connected {
		return domain.ErrLedgerUnreachable
	}

	log.Printf("[coordinator] starting, poll interval %s", c.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[coordinator] stopping after %d cycles", c.Status().Cycles)
			return nil
		default:
		}

		c.Tick(ctx)

		select {
		case <-ctx.Done():
			log.Printf("[coordinator] stopping after %d cycles", c.Status().Cycles)
			return nil
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// Tick runs one complete polling cycle: propose for open tasks, verify
// submitted tasks, learn from terminal tasks. Exposed so tests and the
// simulate command can drive cycles without the wall-clock loop.
func (c *Coordinator) Tick(ctx context.Context) {
	c.proposeOpenTasks(ctx)
	c.verifySubmitted(ctx)
	c.learnTerminal(ctx)

	c.mu.Lock()
	c.cycles++
	c.lastCycleAt = time.Now()
	cycles := c.cycles
	c.mu.Unlock()

	metrics.CyclesTotal.Inc()
	c.publishGauges()

	if c.cfg.MetricsEvery > 0 && cycles%c.cfg.MetricsEvery == 0 {
		s := c.Status()
		log.Printf("[coordinator] cycle=%d proposals=%d verifications=%d outcomes=%d exploration=%.3f success=%.2f roi=%.2f",
			s.Cycles, s.Proposals, s.Verifications, s.Outcomes, s.ExplorationRate, s.SuccessRate, s.ROI)
	}
}

// Status returns a snapshot of the controller counters and learning state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	s := Status{
		Cycles:        c.cycles,
		Proposals:     c.proposals,
		Verifications: c.verifications,
		Outcomes:      c.outcomes,
		LastCycleAt:   c.lastCycleAt,
	}
	c.mu.Unlock()

	stats := c.engine.Stats()
	s.ExplorationRate = stats.ExplorationRate
	s.SuccessRate = stats.SuccessRate
	s.ROI = c.mem.Metrics().ROI
	s.KnownWorkers = c.mem.WorkerCount()
	s.RecordedTasks = c.mem.TaskCount()
	return s
}

// ─── Phase (a)+(b): open tasks ──────────────────────────────────────────────

// proposeOpenTasks walks the ledger's open tasks and submits a proposal
// for each affordable, unexpired one not already handled. Rejected or
// unaffordable tasks stay unhandled and are retried on later ticks; the
// ledger rejects duplicate assignments idempotently.
func (c *Coordinator) proposeOpenTasks(ctx context.Context) {
	cctx, cancel := c.bounded(ctx)
	ids, err := c.ledger.OpenTaskIDs(cctx)
	cancel()
	if err != nil {
		log.Printf("[coordinator] list open tasks: %v", err)
		metrics.LedgerErrors.WithLabelValues("open_tasks").Inc()
		return
	}

	now := time.Now()
	for _, id := range ids {
		c.mu.Lock()
		done := c.processed[id]
		c.mu.Unlock()
		if done {
			continue
		}

		cctx, cancel := c.bounded(ctx)
		t, err := c.ledger.Task(cctx, id)
		cancel()
		if err != nil {
			log.Printf("[coordinator] fetch task %d: %v", id, err)
			metrics.LedgerErrors.WithLabelValues("get_task").Inc()
			continue
		}

		// Deadline expiry is a local decision: stop considering the task
		// without mutating ledger state.
		if t.Expired(now) {
			log.Printf("[coordinator] task %d expired, skipping", id)
			c.markProcessed(id)
			continue
		}

		if !c.affordable(ctx, t) {
			continue // left open for a future tick
		}

		c.proposeOne(ctx, t)
	}
}

// affordable reports whether the task's ceiling fits both the available
// funds and the remaining daily allowance. Ledger errors count as not
// affordable so the task is retried.
func (c *Coordinator) affordable(ctx context.Context, t *domain.Task) bool {
	cctx, cancel := c.bounded(ctx)
	budget, err := c.ledger.AvailableBudget(cctx)
	cancel()
	if err != nil {
		log.Printf("[coordinator] fetch budget: %v", err)
		metrics.LedgerErrors.WithLabelValues("budget").Inc()
		return false
	}

	cctx, cancel = c.bounded(ctx)
	daily, err := c.ledger.RemainingDailyBudget(cctx)
	cancel()
	if err != nil {
		log.Printf("[coordinator] fetch daily budget: %v", err)
		metrics.LedgerErrors.WithLabelValues("budget").Inc()
		return false
	}

	if t.MaxPayment > budget.Available || t.MaxPayment > daily {
		log.Printf("[coordinator] task %d ceiling %.4f unaffordable (available %.4f, daily %.4f)",
			t.ID, t.MaxPayment, budget.Available, daily)
		return false
	}
	return true
}

// proposeOne decides on a worker and price for one task and submits the
// proposal. The task is marked handled only on ledger acknowledgment.
func (c *Coordinator) proposeOne(ctx context.Context, t *domain.Task) {
	cctx, cancel := c.bounded(ctx)
	eligible, err := c.ledger.EligibleWorkers(cctx, t.Category)
	cancel()
	if err != nil {
		log.Printf("[coordinator] eligible workers for task %d: %v", t.ID, err)
		metrics.LedgerErrors.WithLabelValues("eligible_workers").Inc()
		return
	}

	c.syncWorkers(ctx, eligible)

	p := c.engine.Decide(t.ID, t.Category, t.MaxPayment, eligible, c.advisoryScores(ctx, t, eligible))
	if p == nil {
		return // no eligible workers: expected steady state, retried later
	}

	mode := "exploitation"
	if p.Exploration {
		mode = "exploration"
	}
	metrics.DecisionsTotal.WithLabelValues(mode).Inc()

	cctx, cancel = c.bounded(ctx)
	ok, detail, err := c.ledger.ProposeAssignment(cctx, p.TaskID, p.Worker, p.Payment)
	cancel()
	if err != nil {
		log.Printf("[coordinator] propose task %d: %v", t.ID, err)
		metrics.LedgerErrors.WithLabelValues("propose").Inc()
		return
	}
	if !ok {
		log.Printf("[coordinator] task %d proposal rejected: %s", t.ID, detail)
		metrics.ProposalsTotal.WithLabelValues("rejected").Inc()
		return // retried on a later tick
	}

	log.Printf("[coordinator] task %d assigned to %s at %.4f (confidence %.2f, %s)",
		t.ID, p.Worker, p.Payment, p.Confidence, mode)
	metrics.ProposalsTotal.WithLabelValues("accepted").Inc()

	c.mu.Lock()
	c.processed[t.ID] = true
	c.pending[t.ID] = *p
	c.proposals++
	c.mu.Unlock()
}

// syncWorkers copies the ledger's reliability view into the outcome
// memory so decisions work from the authoritative score.
func (c *Coordinator) syncWorkers(ctx context.Context, eligible []string) {
	for _, addr := range eligible {
		cctx, cancel := c.bounded(ctx)
		profile, err := c.ledger.WorkerProfile(cctx, addr)
		cancel()
		if err != nil {
			continue // memory's own estimate stands
		}
		if err := c.mem.SyncReliability(addr, profile.Reliability()); err != nil {
			log.Printf("[coordinator] sync reliability for %s: %v", addr, err)
		}
	}
}

// advisoryScores asks the advisor to rate worker fit, capped at
// advisoryScoreLimit workers. Failures degrade to bandit-only selection.
func (c *Coordinator) advisoryScores(ctx context.Context, t *domain.Task, eligible []string) map[string]float64 {
	if c.advisor == nil {
		return nil
	}

	limit := len(eligible)
	if limit > advisoryScoreLimit {
		limit = advisoryScoreLimit
	}

	scores := make(map[string]float64, limit)
	for _, addr := range eligible[:limit] {
		w := c.mem.GetOrCreateWorker(addr)
		history := advisory.WorkerHistory{
			TotalTasks:        w.TotalTasks,
			SuccessRate:       w.SuccessRate(),
			AvgCompletionSecs: w.AvgCompletionSecs,
			Reliability:       w.Reliability,
		}

		cctx, cancel := c.bounded(ctx)
		score, err := c.advisor.Score(cctx, t, addr, history)
		cancel()
		if err != nil {
			log.Printf("[coordinator] advisory score for %s: %v", addr, err)
			metrics.AdvisoryFailures.Inc()
			continue
		}
		scores[addr] = score
	}
	return scores
}

// ─── Phase (c): verification ────────────────────────────────────────────────

// verifySubmitted runs the verification policy over every submitted task
// and reports a verdict to the ledger.
func (c *Coordinator) verifySubmitted(ctx context.Context) {
	cctx, cancel := c.bounded(ctx)
	count, err := c.ledger.TaskCount(cctx)
	cancel()
	if err != nil {
		log.Printf("[coordinator] task count: %v", err)
		metrics.LedgerErrors.WithLabelValues("task_count").Inc()
		return
	}

	now := time.Now()
	for id := int64(1); id <= count; id++ {
		cctx, cancel := c.bounded(ctx)
		t, err := c.ledger.Task(cctx, id)
		cancel()
		if err != nil || t.Status != domain.TaskSubmitted {
			continue
		}

		rule := ruleVerdict(t, now)

		var assessment advisory.Assessment
		haveAdvisory := false
		if c.advisor != nil {
			cctx, cancel := c.bounded(ctx)
			assessment, err = c.advisor.Assess(cctx, t)
			cancel()
			if err != nil {
				log.Printf("[coordinator] advisory assessment for task %d: %v", id, err)
				metrics.AdvisoryFailures.Inc()
			} else {
				haveAdvisory = true
			}
		}

		accept := blendVerdict(rule, assessment, haveAdvisory)

		cctx, cancel = c.bounded(ctx)
		ok, detail, err := c.ledger.SubmitVerdict(cctx, id, accept)
		cancel()
		if err != nil {
			log.Printf("[coordinator] submit verdict for task %d: %v", id, err)
			metrics.LedgerErrors.WithLabelValues("verdict").Inc()
			continue
		}
		if !ok {
			log.Printf("[coordinator] verdict for task %d not applied: %s", id, detail)
			continue
		}

		verdict := "rejected"
		if accept {
			verdict = "accepted"
		}
		log.Printf("[coordinator] task %d verified: %s (rule=%t advisory=%t)", id, verdict, rule, haveAdvisory)
		metrics.VerificationsTotal.WithLabelValues(verdict).Inc()

		c.mu.Lock()
		c.verifications++
		c.mu.Unlock()
	}
}

// ─── Phase (d): learning ────────────────────────────────────────────────────

// learnTerminal feeds each newly terminal task back into the decision
// engine and the outcome memory, exactly once per task id.
func (c *Coordinator) learnTerminal(ctx context.Context) {
	cctx, cancel := c.bounded(ctx)
	count, err := c.ledger.TaskCount(cctx)
	cancel()
	if err != nil {
		log.Printf("[coordinator] task count: %v", err)
		metrics.LedgerErrors.WithLabelValues("task_count").Inc()
		return
	}

	for id := int64(1); id <= count; id++ {
		c.mu.Lock()
		done := c.learned[id]
		proposal, proposed := c.pending[id]
		c.mu.Unlock()
		if done {
			continue
		}

		cctx, cancel := c.bounded(ctx)
		t, err := c.ledger.Task(cctx, id)
		cancel()
		if err != nil {
			continue
		}
		// Cancellation settles nothing; mark it handled so the scan
		// stays bounded.
		if t.Status == domain.TaskCancelled {
			c.finishLearn(id)
			continue
		}
		if t.Status != domain.TaskCompleted && t.Status != domain.TaskFailed {
			continue
		}
		if t.AssignedWorker == "" {
			c.finishLearn(id)
			continue
		}

		success := t.Status == domain.TaskCompleted

		// The ledger reports the actual payment only on completion; on
		// failure nothing was paid, so the pricer learns from the price
		// that was proposed.
		payment := t.ActualPayment
		if !success && proposed {
			payment = proposal.Payment
		}

		c.engine.Learn(t.Category, t.AssignedWorker, payment, t.MaxPayment, success)

		c.mu.Lock()
		c.outcomes++
		c.mu.Unlock()

		recorded, err := c.mem.RecordOutcome(domain.Outcome{
			TaskID:         t.ID,
			Category:       t.Category,
			Worker:         t.AssignedWorker,
			Payment:        payment,
			MaxPayment:     t.MaxPayment,
			Success:        success,
			CreatedAt:      t.CreatedAt,
			CompletedAt:    t.CompletedAt,
			CompletionTime: t.CompletionTime(),
		})
		if err != nil {
			log.Printf("[coordinator] record outcome for task %d: %v", id, err)
		}

		if recorded {
			result := "failure"
			if success {
				result = "success"
			}
			metrics.OutcomesTotal.WithLabelValues(result).Inc()
			if success {
				metrics.SpentTotal.Add(payment)
			}
			log.Printf("[coordinator] task %d outcome: %s worker=%s payment=%.4f", id, result, t.AssignedWorker, payment)
		}

		c.finishLearn(id)
	}
}

// markProcessed records that a task needs no further open-phase handling.
func (c *Coordinator) markProcessed(id int64) {
	c.mu.Lock()
	c.processed[id] = true
	c.mu.Unlock()
}

// finishLearn marks a terminal task as fed back and drops its pending
// proposal.
func (c *Coordinator) finishLearn(id int64) {
	c.mu.Lock()
	c.learned[id] = true
	delete(c.pending, id)
	c.mu.Unlock()
}

// ─── Internal ───────────────────────────────────────────────────────────────

// bounded wraps ctx with the per-call timeout. Every ledger and advisory
// call is treated as bounded-time; a timeout is a transient failure, not
// a crash.
func (c *Coordinator) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.CallTimeout)
}

// publishGauges pushes current learning state to Prometheus.
func (c *Coordinator) publishGauges() {
	stats := c.engine.Stats()
	metrics.ExplorationRate.Set(stats.ExplorationRate)
	metrics.SuccessRate.Set(stats.SuccessRate)
	metrics.ROI.Set(c.mem.Metrics().ROI)
}
