// Package metrics provides Prometheus metrics for the Stipend
// coordinator: counters and gauges for the polling loop, decisions,
// proposals, verifications, learning state, and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Polling Loop ───────────────────────────────────────────────────────────

// CyclesTotal counts completed polling ticks.
var CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stipend",
	Name:      "cycles_total",
	Help:      "Total polling cycles completed.",
})

// LedgerErrors counts transient ledger call failures by operation.
var LedgerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stipend",
	Name:      "ledger_errors_total",
	Help:      "Total transient ledger errors by operation.",
}, []string{"op"})

// ─── Decisions & Proposals ──────────────────────────────────────────────────

// DecisionsTotal counts decisions by mode.
var DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stipend",
	Name:      "decisions_total",
	Help:      "Total decisions made, by exploration/exploitation mode.",
}, []string{"mode"})

// ProposalsTotal counts proposals by ledger outcome.
var ProposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stipend",
	Name:      "proposals_total",
	Help:      "Total assignment proposals, by ledger acceptance.",
}, []string{"result"})

// ExplorationRate tracks the current exploration probability.
var ExplorationRate = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "stipend",
	Name:      "exploration_rate",
	Help:      "Current exploration probability of the decision engine.",
})

// ─── Verification & Outcomes ────────────────────────────────────────────────

// VerificationsTotal counts submitted verdicts by decision.
var VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stipend",
	Name:      "verifications_total",
	Help:      "Total verification verdicts submitted, by verdict.",
}, []string{"verdict"})

// AdvisoryFailures counts advisory calls that fell back to rules.
var AdvisoryFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stipend",
	Name:      "advisory_failures_total",
	Help:      "Total advisory service failures (non-fatal, rule fallback).",
})

// OutcomesTotal counts learned terminal outcomes.
var OutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stipend",
	Name:      "outcomes_total",
	Help:      "Total terminal task outcomes learned from.",
}, []string{"result"})

// SpentTotal accumulates ledger-reported payments.
var SpentTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stipend",
	Name:      "spent_total",
	Help:      "Cumulative actual payments across completed tasks.",
})

// SuccessRate tracks the historical allocation success rate.
var SuccessRate = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "stipend",
	Name:      "success_rate",
	Help:      "Historical allocation success rate.",
})

// ROI tracks value delivered over spend.
var ROI = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "stipend",
	Name:      "roi",
	Help:      "Return on investment (value delivered / total spent).",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "stipend",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
