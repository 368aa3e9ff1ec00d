package domain

import "time"

// WorkerProfile is a read-only snapshot of a worker as the ledger sees it.
// ReliabilityBP is in basis points (10000 = 100%).
type WorkerProfile struct {
	Address           string         `json:"address"`
	Active            bool           `json:"active"`
	RegisteredAt      time.Time      `json:"registered_at"`
	TotalTasks        int            `json:"total_tasks"`
	SuccessfulTasks   int            `json:"successful_tasks"`
	TotalEarnings     float64        `json:"total_earnings"`
	LastTaskAt        time.Time      `json:"last_task_at,omitempty"`
	ReliabilityBP     int            `json:"reliability_bp"`
	AllowedCategories []TaskCategory `json:"allowed_categories"`
}

// Reliability converts the basis-point score to a [0,1] fraction.
func (w *WorkerProfile) Reliability() float64 {
	return float64(w.ReliabilityBP) / 10000.0
}

// CanWork reports whether the worker is registered for the category.
func (w *WorkerProfile) CanWork(cat TaskCategory) bool {
	for _, c := range w.AllowedCategories {
		if c == cat {
			return true
		}
	}
	return false
}
