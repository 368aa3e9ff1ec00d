// Package domain holds the shared types of the Stipend coordinator.
// A Task is owned by the external ledger; the coordinator only holds
// read-only snapshots and requests transitions through proposals and
// verdicts. It never mutates ledger state itself.
package domain

import "time"

// TaskStatus tracks the ledger-owned task lifecycle.
type TaskStatus int

const (
	TaskCreated TaskStatus = iota
	TaskAssigned
	TaskSubmitted
	TaskVerified
	TaskCompleted
	TaskFailed
	TaskCancelled
)

// String returns a human-readable status label.
func (s TaskStatus) String() string {
	switch s {
	case TaskCreated:
		return "CREATED"
	case TaskAssigned:
		return "ASSIGNED"
	case TaskSubmitted:
		return "SUBMITTED"
	case TaskVerified:
		return "VERIFIED"
	case TaskCompleted:
		return "COMPLETED"
	case TaskFailed:
		return "FAILED"
	case TaskCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal returns true if the task has reached a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskCategory classifies the kind of work.
type TaskCategory int

const (
	CatDataAnalysis TaskCategory = iota
	CatTextGeneration
	CatCodeReview
	CatResearch
	CatComputation
	CatOther
)

// String returns a human-readable category label.
func (c TaskCategory) String() string {
	switch c {
	case CatDataAnalysis:
		return "DATA_ANALYSIS"
	case CatTextGeneration:
		return "TEXT_GENERATION"
	case CatCodeReview:
		return "CODE_REVIEW"
	case CatResearch:
		return "RESEARCH"
	case CatComputation:
		return "COMPUTATION"
	default:
		return "OTHER"
	}
}

// Task is a read-only snapshot of a ledger task.
// AssignedWorker is set iff status is ASSIGNED or later (excluding CANCELLED).
// ActualPayment stays zero until COMPLETED or FAILED.
type Task struct {
	ID               int64        `json:"id"`
	Category         TaskCategory `json:"category"`
	Status           TaskStatus   `json:"status"`
	Creator          string       `json:"creator"`
	AssignedWorker   string       `json:"assigned_worker,omitempty"`
	MaxPayment       float64      `json:"max_payment"`
	ActualPayment    float64      `json:"actual_payment"`
	Deadline         time.Time    `json:"deadline"`
	CreatedAt        time.Time    `json:"created_at"`
	CompletedAt      time.Time    `json:"completed_at,omitempty"`
	ContentHash      string       `json:"content_hash"`
	ResultHash       string       `json:"result_hash,omitempty"`
	VerificationRule string       `json:"verification_rule,omitempty"`
}

// Expired reports whether the task deadline has passed at the given time.
func (t *Task) Expired(now time.Time) bool {
	return now.After(t.Deadline)
}

// CompletionTime returns how long the task took from creation to completion.
// Zero if the task never completed.
func (t *Task) CompletionTime() time.Duration {
	if t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.CreatedAt)
}
