// Package strategy implements the decision and learning engine:
// a UCB1 multi-armed bandit for worker selection, a per-category price
// optimizer, and the engine that composes them into decide/learn calls.
package strategy

import (
	"math"

	"github.com/stipend-works/stipend/internal/domain"
)

// defaultExplorationConstant is the UCB1 exploration coefficient.
const defaultExplorationConstant = 2.0

// CategoryScorer supplies a learned [0,1] prior for a worker in a
// category. The second return is false when no record exists and the
// bandit should fall back to its pure average reward.
type CategoryScorer interface {
	CategoryScore(worker string, cat domain.TaskCategory) (float64, bool)
}

// ScorerFunc adapts a function to the CategoryScorer interface.
type ScorerFunc func(worker string, cat domain.TaskCategory) (float64, bool)

// CategoryScore calls the wrapped function.
func (f ScorerFunc) CategoryScore(worker string, cat domain.TaskCategory) (float64, bool) {
	return f(worker, cat)
}

// Bandit is a UCB1 multi-armed bandit over worker identities.
// Its state is process-lifetime only: losing it on restart just means
// re-exploring, which the unexplored-first policy makes safe.
type Bandit struct {
	explorationC float64
	pulls        map[string]int
	rewards      map[string]float64
	totalPulls   int
}

// NewBandit creates a bandit with the standard exploration constant.
func NewBandit() *Bandit {
	return &Bandit{
		explorationC: defaultExplorationConstant,
		pulls:        make(map[string]int),
		rewards:      make(map[string]float64),
	}
}

// Select picks the highest-scoring eligible worker.
//
// Workers with zero pulls score infinite, so every worker is tried once
// before any explored worker is picked again (cold-start fairness). An
// explored worker scores
//
//	blend + C*sqrt(ln(total)/pulls)
//
// where blend = 0.7*avg_reward + 0.3*category_prior, falling back to
// the pure average when the scorer has no entry. Ties keep the order of
// the eligible list. The returned confidence is min(1, score/2) — a
// crude normalization for logging and thresholds, not a calibrated
// probability. An empty eligible list returns ("", 0), not an error.
func (b *Bandit) Select(eligible []string, scorer CategoryScorer, cat domain.TaskCategory) (string, float64) {
	if len(eligible) == 0 {
		return "", 0
	}

	b.totalPulls++

	best := ""
	bestScore := math.Inf(-1)
	for _, worker := range eligible {
		score := b.score(worker, scorer, cat)
		if score > bestScore {
			best = worker
			bestScore = score
		}
	}

	return best, min(1.0, bestScore/2.0)
}

func (b *Bandit) score(worker string, scorer CategoryScorer, cat domain.TaskCategory) float64 {
	pulls := b.pulls[worker]
	if pulls == 0 {
		return math.Inf(1) // unexplored first
	}

	avg := b.rewards[worker] / float64(pulls)
	if scorer != nil {
		if prior, ok := scorer.CategoryScore(worker, cat); ok {
			avg = 0.7*avg + 0.3*prior
		}
	}

	bonus := b.explorationC * math.Sqrt(math.Log(float64(b.totalPulls))/float64(pulls))
	return avg + bonus
}

// Update records an observed reward for a worker. Rewards may be
// negative.
func (b *Bandit) Update(worker string, reward float64) {
	b.pulls[worker]++
	b.rewards[worker] += reward
}

// Pulls returns the pull count for a worker.
func (b *Bandit) Pulls(worker string) int { return b.pulls[worker] }

// TotalPulls returns the global selection counter.
func (b *Bandit) TotalPulls() int { return b.totalPulls }
