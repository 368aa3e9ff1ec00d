package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Ledger errors
	ErrTaskNotFound      = errors.New("task not found on ledger")
	ErrWorkerNotFound    = errors.New("worker not registered on ledger")
	ErrLedgerUnreachable = errors.New("ledger is unreachable")

	// Memory errors
	ErrStoreCorrupted = errors.New("durable store is corrupted or inconsistent")

	// Simulation errors
	ErrTaskNotOpen         = errors.New("task is not open for assignment")
	ErrTaskNotSubmitted    = errors.New("task has no submitted result to verify")
	ErrInsufficientBudget  = errors.New("payment exceeds available budget")
	ErrDailyBudgetExceeded = errors.New("payment exceeds remaining daily allowance")
	ErrWorkerNotEligible   = errors.New("worker not eligible for task category")
)
