// Package ledger defines the coordinator's view of the external ledger:
// the sole authority over task existence, worker registration, and money
// movement. The coordinator can only read state and request transitions;
// every request may be rejected and the engine must stay correct if all
// of them are.
package ledger

import (
	"context"

	"github.com/stipend-works/stipend/internal/domain"
)

// Budget is the ledger's spending headroom.
type Budget struct {
	Total     float64 `json:"total"`
	Reserved  float64 `json:"reserved"`
	Available float64 `json:"available"`
}

// Client is the ledger collaborator interface. Implementations must
// honor ctx cancellation; every call is treated as bounded-time by the
// coordinator. A (false, detail) return is a rejection, not an error —
// errors mean the ledger could not be consulted at all.
type Client interface {
	// OpenTaskIDs lists tasks currently open for assignment.
	OpenTaskIDs(ctx context.Context) ([]int64, error)

	// Task returns a read-only snapshot of one task.
	Task(ctx context.Context, id int64) (*domain.Task, error)

	// TaskCount returns the highest task id ever created (ids are 1..n).
	TaskCount(ctx context.Context) (int64, error)

	// AvailableBudget returns total, reserved, and spendable funds.
	AvailableBudget(ctx context.Context) (Budget, error)

	// RemainingDailyBudget returns what may still be spent today.
	RemainingDailyBudget(ctx context.Context) (float64, error)

	// ProposeAssignment asks the ledger to assign a worker at a price.
	ProposeAssignment(ctx context.Context, taskID int64, worker string, payment float64) (bool, string, error)

	// SubmitVerdict reports the verification result for a submitted task.
	SubmitVerdict(ctx context.Context, taskID int64, accepted bool) (bool, string, error)

	// EligibleWorkers lists workers registered for a category.
	EligibleWorkers(ctx context.Context, cat domain.TaskCategory) ([]string, error)

	// WorkerProfile returns the ledger's reliability snapshot for a worker.
	WorkerProfile(ctx context.Context, address string) (*domain.WorkerProfile, error)

	// Connected reports whether the ledger is reachable at all.
	// A false return at startup is fatal; mid-loop failures are transient.
	Connected(ctx context.Context) bool
}
