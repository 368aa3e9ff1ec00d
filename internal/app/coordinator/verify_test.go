package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stipend-works/stipend/internal/domain"
	"github.com/stipend-works/stipend/internal/infra/advisory"
)

func TestRuleVerdict(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		task domain.Task
		want bool
	}{
		{"default rule passes with result", domain.Task{ResultHash: "abc", Deadline: future}, true},
		{"default rule fails without result", domain.Task{Deadline: future}, false},
		{"unknown rule falls back to default", domain.Task{VerificationRule: "mystery", ResultHash: "abc", Deadline: future}, true},
		{"deadline rule passes in time", domain.Task{VerificationRule: RuleDeadlineMet, ResultHash: "abc", Deadline: future}, true},
		{"deadline rule fails past deadline", domain.Task{VerificationRule: RuleDeadlineMet, ResultHash: "abc", Deadline: past}, false},
		{"deadline rule still needs a result", domain.Task{VerificationRule: RuleDeadlineMet, Deadline: future}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ruleVerdict(&tt.task, now); got != tt.want {
				t.Errorf("ruleVerdict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBlendVerdict(t *testing.T) {
	tests := []struct {
		name         string
		rule         bool
		assessment   advisory.Assessment
		haveAdvisory bool
		want         bool
	}{
		{"no advisory uses rule", false, advisory.Assessment{}, false, false},
		{"high confidence overrides failing rule", false, advisory.Assessment{Confidence: 0.8, Recommendation: true}, true, true},
		{"high confidence overrides passing rule", true, advisory.Assessment{Confidence: 0.9, Recommendation: false}, true, false},
		{"medium confidence needs agreement", false, advisory.Assessment{Confidence: 0.6, Recommendation: true}, true, false},
		{"medium confidence agrees", true, advisory.Assessment{Confidence: 0.6, Recommendation: true}, true, true},
		{"low confidence ignored", false, advisory.Assessment{Confidence: 0.3, Recommendation: true}, true, false},
		{"low confidence ignored passing rule", true, advisory.Assessment{Confidence: 0.3, Recommendation: false}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := blendVerdict(tt.rule, tt.assessment, tt.haveAdvisory); got != tt.want {
				t.Errorf("blendVerdict() = %v, want %v", got, tt.want)
			}
		})
	}
}

// fakeAdvisor returns fixed answers, or errors when broken.
type fakeAdvisor struct {
	assessment advisory.Assessment
	score      float64
	broken     bool
}

func (f *fakeAdvisor) Assess(ctx context.Context, task *domain.Task) (advisory.Assessment, error) {
	if f.broken {
		return advisory.Assessment{}, context.DeadlineExceeded
	}
	return f.assessment, nil
}

func (f *fakeAdvisor) Score(ctx context.Context, task *domain.Task, worker string, history advisory.WorkerHistory) (float64, error) {
	if f.broken {
		return 0, context.DeadlineExceeded
	}
	return f.score, nil
}

func TestCoordinator_HighConfidenceAdvisoryOverridesRule(t *testing.T) {
	// The worker always submits without a result fingerprint, so the
	// rule-based verdict alone would reject.
	advisor := &fakeAdvisor{assessment: advisory.Assessment{Confidence: 0.8, Recommendation: true}, score: 0.5}
	f := newFixtureWithWorker(t, 100, 0.0, advisor)
	ctx := context.Background()
	id := f.sim.CreateTask(domain.CatDataAnalysis, 5, time.Now().Add(time.Hour), "")

	f.coord.Tick(ctx)
	f.sim.Advance()
	f.coord.Tick(ctx)

	task, _ := f.sim.Task(ctx, id)
	if task.Status != domain.TaskCompleted {
		t.Errorf("status = %v, want COMPLETED (advisory trusted outright)", task.Status)
	}
}

func TestCoordinator_LowConfidenceAdvisoryIgnored(t *testing.T) {
	advisor := &fakeAdvisor{assessment: advisory.Assessment{Confidence: 0.3, Recommendation: true}, score: 0.5}
	f := newFixtureWithWorker(t, 100, 0.0, advisor)
	ctx := context.Background()
	id := f.sim.CreateTask(domain.CatDataAnalysis, 5, time.Now().Add(time.Hour), "")

	f.coord.Tick(ctx)
	f.sim.Advance()
	f.coord.Tick(ctx)

	task, _ := f.sim.Task(ctx, id)
	if task.Status != domain.TaskFailed {
		t.Errorf("status = %v, want FAILED (rule-based verdict stands)", task.Status)
	}
}

func TestCoordinator_BrokenAdvisoryDegradesToRules(t *testing.T) {
	f := newFixture(t, 100, &fakeAdvisor{broken: true})
	ctx := context.Background()
	id := f.sim.CreateTask(domain.CatDataAnalysis, 5, time.Now().Add(time.Hour), "")

	f.coord.Tick(ctx)
	f.sim.Advance()
	f.coord.Tick(ctx)

	// w1 is a perfect worker: the rule-based verdict accepts its result
	// even though every advisory call fails.
	task, _ := f.sim.Task(ctx, id)
	if task.Status != domain.TaskCompleted {
		t.Errorf("status = %v, want COMPLETED via rule fallback", task.Status)
	}
}
