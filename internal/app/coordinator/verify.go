package coordinator

import (
	"time"

	"github.com/stipend-works/stipend/internal/domain"
	"github.com/stipend-works/stipend/internal/infra/advisory"
)

// Advisory confidence thresholds for verification blending.
const (
	advisoryTrustThreshold = 0.7 // trust the advisory verdict outright
	advisoryAgreeThreshold = 0.5 // require agreement with the rule verdict
)

// Verification rule strings understood by the rule engine. A task with
// no rule set gets RuleResultPresent.
const (
	RuleResultPresent = "result_present"
	RuleDeadlineMet   = "deadline_met"
)

// ruleVerdict evaluates the task's verification rule. Unknown rules fall
// back to the default: pass iff a result fingerprint is present.
func ruleVerdict(t *domain.Task, now time.Time) bool {
	switch t.VerificationRule {
	case RuleDeadlineMet:
		return t.ResultHash != "" && !t.Expired(now)
	default:
		return t.ResultHash != ""
	}
}

// blendVerdict combines the rule verdict with an optional advisory
// assessment. High-confidence advice wins outright, medium-confidence
// advice must agree with the rules, and low-confidence or absent advice
// is ignored entirely.
func blendVerdict(rule bool, assessment advisory.Assessment, haveAdvisory bool) bool {
	if !haveAdvisory {
		return rule
	}
	switch {
	case assessment.Confidence >= advisoryTrustThreshold:
		return assessment.Recommendation
	case assessment.Confidence >= advisoryAgreeThreshold:
		return assessment.Recommendation && rule
	default:
		return rule
	}
}
