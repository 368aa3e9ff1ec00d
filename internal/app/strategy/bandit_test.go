package strategy

import (
	"testing"

	"github.com/stipend-works/stipend/internal/domain"
)

// noPrior is a scorer with no entries; the bandit falls back to pure
// average reward.
var noPrior = ScorerFunc(func(string, domain.TaskCategory) (float64, bool) {
	return 0, false
})

func TestBandit_EmptyEligible(t *testing.T) {
	b := NewBandit()

	worker, confidence := b.Select(nil, noPrior, domain.CatOther)
	if worker != "" {
		t.Errorf("Select(empty) worker = %q, want empty", worker)
	}
	if confidence != 0 {
		t.Errorf("Select(empty) confidence = %v, want 0", confidence)
	}
}

func TestBandit_ColdStartFairness(t *testing.T) {
	b := NewBandit()

	// Worker A has a strong track record; B has never been pulled.
	for i := 0; i < 20; i++ {
		b.Update("A", 1.0)
	}

	worker, confidence := b.Select([]string{"A", "B"}, noPrior, domain.CatOther)
	if worker != "B" {
		t.Errorf("Select() = %q, want unexplored worker B", worker)
	}
	if confidence != 1.0 {
		t.Errorf("unexplored confidence = %v, want 1.0", confidence)
	}
}

func TestBandit_AllUnexploredTieKeepsInputOrder(t *testing.T) {
	b := NewBandit()

	worker, _ := b.Select([]string{"C", "A", "B"}, noPrior, domain.CatOther)
	if worker != "C" {
		t.Errorf("Select() = %q, want first of eligible list C", worker)
	}
}

func TestBandit_PrefersHigherAverageReward(t *testing.T) {
	b := NewBandit()

	// Equal pull counts so the exploration bonus cancels out.
	for i := 0; i < 50; i++ {
		b.Update("good", 1.0)
		b.Update("bad", -0.5)
	}

	worker, _ := b.Select([]string{"bad", "good"}, noPrior, domain.CatOther)
	if worker != "good" {
		t.Errorf("Select() = %q, want good", worker)
	}
}

func TestBandit_CategoryPriorBlendsIntoScore(t *testing.T) {
	b := NewBandit()

	// Identical reward history; the category prior is the tiebreaker.
	for i := 0; i < 50; i++ {
		b.Update("A", 0.5)
		b.Update("B", 0.5)
	}

	prior := ScorerFunc(func(worker string, cat domain.TaskCategory) (float64, bool) {
		if worker == "B" {
			return 1.0, true
		}
		return 0.0, true
	})

	worker, _ := b.Select([]string{"A", "B"}, prior, domain.CatCodeReview)
	if worker != "B" {
		t.Errorf("Select() = %q, want B (higher category prior)", worker)
	}
}

func TestBandit_ConfidenceWithinUnitInterval(t *testing.T) {
	b := NewBandit()
	b.Update("A", 10.0) // large reward drives the raw score above 2

	_, confidence := b.Select([]string{"A"}, noPrior, domain.CatOther)
	if confidence < 0 || confidence > 1 {
		t.Errorf("confidence = %v, want within [0,1]", confidence)
	}
}

func TestBandit_UpdateAccumulates(t *testing.T) {
	b := NewBandit()

	b.Update("A", 1.0)
	b.Update("A", -0.5)

	if got := b.Pulls("A"); got != 2 {
		t.Errorf("Pulls(A) = %d, want 2", got)
	}
}

func TestBandit_SelectIncrementsTotalPulls(t *testing.T) {
	b := NewBandit()

	b.Select([]string{"A"}, noPrior, domain.CatOther)
	b.Select([]string{"A"}, noPrior, domain.CatOther)

	if got := b.TotalPulls(); got != 2 {
		t.Errorf("TotalPulls() = %d, want 2", got)
	}
}
