package domain

import "time"

// Proposal is a (worker, price) pair the coordinator submits for ledger
// approval. The ledger is the sole authority; a proposal may be rejected
// for any reason and the coordinator must stay correct if every one is.
type Proposal struct {
	TaskID      int64        `json:"task_id"`
	Category    TaskCategory `json:"category"`
	Worker      string       `json:"worker"`
	Payment     float64      `json:"payment"`
	Confidence  float64      `json:"confidence"`
	Exploration bool         `json:"exploration"`
}

// Outcome is the terminal result of a task as reported by the ledger,
// fed back into the learning state.
type Outcome struct {
	TaskID         int64         `json:"task_id"`
	Category       TaskCategory  `json:"category"`
	Worker         string        `json:"worker"`
	Payment        float64       `json:"payment"`
	MaxPayment     float64       `json:"max_payment"`
	Success        bool          `json:"success"`
	CreatedAt      time.Time     `json:"created_at"`
	CompletedAt    time.Time     `json:"completed_at"`
	CompletionTime time.Duration `json:"completion_time"`
}
