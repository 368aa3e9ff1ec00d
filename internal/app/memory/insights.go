package memory

import "sort"

// Read-only aggregates for the status API. None of these feed back into
// the live decision path.

// TopWorker is one entry of the ranked worker list in a summary.
type TopWorker struct {
	Address     string  `json:"address"`
	Reliability float64 `json:"reliability"`
	SuccessRate float64 `json:"success_rate"`
	TotalTasks  int     `json:"total_tasks"`
}

// Summary is a point-in-time view of learning performance.
type Summary struct {
	TotalWorkers      int             `json:"total_workers"`
	TotalTasks        int             `json:"total_tasks"`
	RecentSuccessRate float64         `json:"recent_success_rate"`
	ImprovementPct    float64         `json:"improvement_pct"`
	Strategy          StrategyMetrics `json:"strategy"`
	TopWorkers        []TopWorker     `json:"top_workers"`
}

// recentWindow is how many trailing tasks feed the recent success rate.
const recentWindow = 20

// MetricsSummary builds the observability summary.
func (m *Memory) MetricsSummary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{
		TotalWorkers: len(m.workers),
		TotalTasks:   len(m.tasks),
		Strategy:     m.metrics,
	}

	// Recent success rate over the trailing window.
	start := len(m.taskOrder) - recentWindow
	if start < 0 {
		start = 0
	}
	recent := m.taskOrder[start:]
	if len(recent) > 0 {
		successes := 0
		for _, id := range recent {
			if m.tasks[id].Success {
				successes++
			}
		}
		s.RecentSuccessRate = float64(successes) / float64(len(recent))
	}

	// Cost-efficiency improvement: first five vs last five trend samples.
	trend := m.metrics.CostEfficiencyTrend
	if len(trend) >= 10 {
		earlyAvg := mean(trend[:5])
		recentAvg := mean(trend[len(trend)-5:])
		if earlyAvg > 0 {
			s.ImprovementPct = (earlyAvg - recentAvg) / earlyAvg * 100
		}
	}

	// Top five workers by reliability.
	top := make([]*WorkerRecord, 0, len(m.workers))
	for _, w := range m.workers {
		top = append(top, w)
	}
	sort.Slice(top, func(i, j int) bool {
		return top[i].Reliability > top[j].Reliability
	})
	if len(top) > 5 {
		top = top[:5]
	}
	for _, w := range top {
		s.TopWorkers = append(s.TopWorkers, TopWorker{
			Address:     w.Address,
			Reliability: w.Reliability,
			SuccessRate: w.SuccessRate(),
			TotalTasks:  w.TotalTasks,
		})
	}

	return s
}

// InsightPeriod summarizes one half of the task history.
type InsightPeriod struct {
	Tasks       int     `json:"tasks"`
	SuccessRate float64 `json:"success_rate"`
	AvgCost     float64 `json:"avg_cost"`
}

// Insights compares early vs recent halves of the task history.
type Insights struct {
	Status            string        `json:"status"`
	Message           string        `json:"message"`
	TotalTasks        int           `json:"total_tasks"`
	Early             InsightPeriod `json:"early_period,omitempty"`
	Recent            InsightPeriod `json:"recent_period,omitempty"`
	SuccessRateChange float64       `json:"success_rate_change"`
	CostReduction     float64       `json:"cost_reduction"`
	DecisionQuality   float64       `json:"decision_quality"`
}

// insightsMinTasks is the smallest history that yields a meaningful trend.
const insightsMinTasks = 5

// LearningInsights reports whether the agent is improving over time.
// With fewer than five recorded tasks it returns an explicit
// insufficient-data status instead of a misleading trend.
func (m *Memory) LearningInsights() Insights {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.taskOrder)
	if n < insightsMinTasks {
		return Insights{
			Status:     "insufficient_data",
			Message:    "need at least 5 recorded tasks to show learning trends",
			TotalTasks: n,
		}
	}

	split := n / 2
	early := m.periodLocked(m.taskOrder[:split])
	recent := m.periodLocked(m.taskOrder[split:])

	ins := Insights{
		Status:          "learning",
		TotalTasks:      n,
		Early:           early,
		Recent:          recent,
		DecisionQuality: m.metrics.DecisionQuality,
	}
	if early.SuccessRate > 0 {
		ins.SuccessRateChange = (recent.SuccessRate - early.SuccessRate) / early.SuccessRate * 100
	}
	if early.AvgCost > 0 {
		ins.CostReduction = (early.AvgCost - recent.AvgCost) / early.AvgCost * 100
	}

	verb := "learning"
	if ins.SuccessRateChange > 0 {
		verb = "improving"
	}
	ins.Message = verb
	return ins
}

func (m *Memory) periodLocked(ids []int64) InsightPeriod {
	p := InsightPeriod{Tasks: len(ids)}
	if len(ids) == 0 {
		return p
	}
	successes := 0
	cost := 0.0
	for _, id := range ids {
		t := m.tasks[id]
		if t.Success {
			successes++
		}
		cost += t.ActualPayment
	}
	p.SuccessRate = float64(successes) / float64(len(ids))
	p.AvgCost = cost / float64(len(ids))
	return p
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
