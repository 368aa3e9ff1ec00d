// Package advisory integrates an optional natural-language assessment
// service into the coordinator. The advisor is never authoritative:
// absence or failure always degrades to rule-based verification and
// bandit-only selection with no change to correctness guarantees.
package advisory

import (
	"context"

	"github.com/stipend-works/stipend/internal/domain"
)

// Assessment is the advisor's opinion on a submitted task.
type Assessment struct {
	Confidence     float64 `json:"confidence"`     // [0,1]
	Recommendation bool    `json:"recommendation"` // accept the work?
}

// WorkerHistory summarizes what the coordinator knows about a worker
// when asking for a selection score.
type WorkerHistory struct {
	TotalTasks        int     `json:"total_tasks"`
	SuccessRate       float64 `json:"success_rate"`
	AvgCompletionSecs float64 `json:"avg_completion_secs"`
	Reliability       float64 `json:"reliability"`
}

// Advisor is the capability interface for the optional collaborator.
// A nil Advisor reference is a valid, fully-supported configuration.
type Advisor interface {
	// Assess gives a verification opinion for a submitted task.
	Assess(ctx context.Context, task *domain.Task) (Assessment, error)

	// Score rates a worker's fit for a task in [0,1].
	Score(ctx context.Context, task *domain.Task, worker string, history WorkerHistory) (float64, error)
}
