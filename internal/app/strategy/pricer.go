package strategy

import "github.com/stipend-works/stipend/internal/domain"

// Pricing model constants. The base multiplier is fixed; only the
// adjustment term is learned.
const (
	baseMultiplier  = 0.7
	minPayment      = 0.1
	reliabilityGain = 0.2
)

// paymentModel is the learned state for one task category.
type paymentModel struct {
	adjustment float64
}

// Pricer maps (budget ceiling, worker reliability) to a proposed price
// per task category, nudged by outcome feedback. This is a first-order
// stochastic approximation — a heuristic, not a convergence-proven
// optimizer.
type Pricer struct {
	learningRate float64
	models       map[domain.TaskCategory]*paymentModel
}

// NewPricer creates a pricer with the given learning rate.
func NewPricer(learningRate float64) *Pricer {
	return &Pricer{
		learningRate: learningRate,
		models:       make(map[domain.TaskCategory]*paymentModel),
	}
}

// OptimalPayment returns the proposed price:
//
//	clamp(ceiling*0.7 + (reliability-0.5)*0.2*ceiling + adjustment, 0.1, ceiling)
//
// Reliable workers are paid a premium, unreliable ones a discount.
func (p *Pricer) OptimalPayment(cat domain.TaskCategory, ceiling, reliability float64) float64 {
	adj := 0.0
	if m, ok := p.models[cat]; ok {
		adj = m.adjustment
	}

	price := ceiling*baseMultiplier + (reliability-0.5)*reliabilityGain*ceiling + adj

	if price > ceiling {
		price = ceiling
	}
	if price < minPayment {
		price = minPayment
	}
	return price
}

// Update nudges the category adjustment from one outcome. Success
// pushes the price down (it was enough), failure pushes it up (it
// wasn't enough incentive).
func (p *Pricer) Update(cat domain.TaskCategory, payment float64, success bool, ceiling float64) {
	if ceiling <= 0 {
		return
	}

	m, ok := p.models[cat]
	if !ok {
		m = &paymentModel{}
		p.models[cat] = m
	}

	if success {
		m.adjustment -= p.learningRate * (payment / ceiling) * 0.1
	} else {
		m.adjustment += p.learningRate * (1 - payment/ceiling) * 0.2
	}
}

// ModelCount returns how many categories have learned pricing state.
func (p *Pricer) ModelCount() int { return len(p.models) }
