// Package memory implements the Outcome Memory: the durable record of
// per-worker performance and per-task history that the decision engine
// learns from. Pure data and update rules — the only I/O is a full-state
// flush to a Store after every mutation that affects worker records or
// strategy metrics.
package memory

import (
	"time"

	"github.com/stipend-works/stipend/internal/domain"
)

// Reliability and category-score nudges applied on each outcome.
const (
	reliabilitySuccessDelta = 0.05
	reliabilityFailureDelta = 0.10
	categorySuccessDelta    = 0.10
	categoryFailureDelta    = 0.15
	neutralScore            = 0.5
)

// WorkerRecord tracks everything learned about one worker.
// Mutated only by Update on outcome arrival.
type WorkerRecord struct {
	Address           string                          `json:"address"`
	TotalTasks        int                             `json:"total_tasks"`
	SuccessfulTasks   int                             `json:"successful_tasks"`
	FailedTasks       int                             `json:"failed_tasks"`
	TotalEarnings     float64                         `json:"total_earnings"`
	AvgCompletionSecs float64                         `json:"avg_completion_secs"`
	Reliability       float64                         `json:"reliability"`
	CategoryScores    map[domain.TaskCategory]float64 `json:"category_scores"`
	LastTaskAt        time.Time                       `json:"last_task_at,omitempty"`
}

// NewWorkerRecord creates a record with neutral priors.
func NewWorkerRecord(address string) *WorkerRecord {
	return &WorkerRecord{
		Address:        address,
		Reliability:    neutralScore,
		CategoryScores: make(map[domain.TaskCategory]float64),
	}
}

// SuccessRate returns successful/total, or the neutral prior 0.5 when the
// worker has no history. Never divides by zero.
func (w *WorkerRecord) SuccessRate() float64 {
	if w.TotalTasks == 0 {
		return neutralScore
	}
	return float64(w.SuccessfulTasks) / float64(w.TotalTasks)
}

// CategoryScore returns the learned [0,1] score for a category, falling
// back to the neutral prior when the category was never seen.
func (w *WorkerRecord) CategoryScore(cat domain.TaskCategory) float64 {
	if s, ok := w.CategoryScores[cat]; ok {
		return s
	}
	return neutralScore
}

// Update applies one task outcome to the record. Reliability moves by
// +0.05 on success and -0.10 on failure; the per-category score by
// +0.10/-0.15. Both are clamped to [0,1]. Completion time is smoothed
// with weight 0.7 old / 0.3 new.
func (w *WorkerRecord) Update(success bool, cat domain.TaskCategory, earnings float64, completion time.Duration) {
	w.TotalTasks++
	w.LastTaskAt = time.Now()

	if success {
		w.SuccessfulTasks++
		w.TotalEarnings += earnings

		secs := completion.Seconds()
		if w.AvgCompletionSecs == 0 {
			w.AvgCompletionSecs = secs
		} else {
			w.AvgCompletionSecs = 0.7*w.AvgCompletionSecs + 0.3*secs
		}

		w.CategoryScores[cat] = clamp01(w.CategoryScore(cat) + categorySuccessDelta)
		w.Reliability = clamp01(w.Reliability + reliabilitySuccessDelta)
	} else {
		w.FailedTasks++
		w.CategoryScores[cat] = clamp01(w.CategoryScore(cat) - categoryFailureDelta)
		w.Reliability = clamp01(w.Reliability - reliabilityFailureDelta)
	}
}

// TaskRecord is the per-task history entry written when a terminal
// outcome is observed.
type TaskRecord struct {
	TaskID          int64               `json:"task_id"`
	Category        domain.TaskCategory `json:"category"`
	Worker          string              `json:"worker"`
	ProposedPayment float64             `json:"proposed_payment"`
	ActualPayment   float64             `json:"actual_payment"`
	Success         bool                `json:"success"`
	CreatedAt       time.Time           `json:"created_at"`
	CompletedAt     time.Time           `json:"completed_at"`
	CompletionSecs  float64             `json:"completion_secs"`
}

// DecisionRecord is one entry of the ephemeral decision ring buffer.
// Used only for offline inspection — never re-read by the decision path.
type DecisionRecord struct {
	ID          string              `json:"id"`
	TaskID      int64               `json:"task_id"`
	Category    domain.TaskCategory `json:"category"`
	Worker      string              `json:"worker"`
	Payment     float64             `json:"payment"`
	Confidence  float64             `json:"confidence"`
	Exploration bool                `json:"exploration"`
	At          time.Time           `json:"at"`
}

// StrategyMetrics aggregates outcomes across all tasks. One singleton,
// mutated on every recorded outcome. Value delivered is a deliberately
// simple proxy: 1.5x payment on success, 0 on failure.
type StrategyMetrics struct {
	TotalDecisions        int       `json:"total_decisions"`
	SuccessfulAllocations int       `json:"successful_allocations"`
	FailedAllocations     int       `json:"failed_allocations"`
	TotalSpent            float64   `json:"total_spent"`
	TotalValueDelivered   float64   `json:"total_value_delivered"`
	AvgCostPerSuccess     float64   `json:"avg_cost_per_success"`
	ROI                   float64   `json:"roi"`
	HistoricalSuccessRate float64   `json:"historical_success_rate"`
	CostEfficiencyTrend   []float64 `json:"cost_efficiency_trend"`
	DecisionQuality       float64   `json:"decision_quality"`
}

// costTrendCap bounds the trailing cost-per-success sample list.
const costTrendCap = 50

// Update folds one outcome into the aggregates.
func (m *StrategyMetrics) Update(success bool, cost float64) {
	m.TotalDecisions++
	m.TotalSpent += cost

	if success {
		m.SuccessfulAllocations++
		m.TotalValueDelivered += cost * 1.5
	} else {
		m.FailedAllocations++
	}

	if m.SuccessfulAllocations > 0 {
		m.AvgCostPerSuccess = m.TotalSpent / float64(m.SuccessfulAllocations)
		m.CostEfficiencyTrend = append(m.CostEfficiencyTrend, m.AvgCostPerSuccess)
		if len(m.CostEfficiencyTrend) > costTrendCap {
			m.CostEfficiencyTrend = m.CostEfficiencyTrend[len(m.CostEfficiencyTrend)-costTrendCap:]
		}
	}

	if m.TotalSpent > 0 {
		m.ROI = m.TotalValueDelivered / m.TotalSpent
	}
	if m.TotalDecisions > 0 {
		m.HistoricalSuccessRate = float64(m.SuccessfulAllocations) / float64(m.TotalDecisions)
	}

	// Quality combines success rate and cost efficiency.
	efficiency := 0.0
	if m.ROI > 0 {
		efficiency = min(1.0, m.ROI/2.0)
	}
	m.DecisionQuality = 0.6*m.HistoricalSuccessRate + 0.4*efficiency
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
