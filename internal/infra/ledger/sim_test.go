package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stipend-works/stipend/internal/domain"
)

func newTestSim(t *testing.T) *Sim {
	t.Helper()
	s := NewSim(SimConfig{
		InitialFunds:    100,
		DailyLimit:      50,
		MaxSpendPerTask: 10,
		Seed:            1,
	})
	s.RegisterWorker("w1", 1.0, domain.CatDataAnalysis)
	return s
}

func createTask(s *Sim) int64 {
	return s.CreateTask(domain.CatDataAnalysis, 5, time.Now().Add(time.Hour), "")
}

func TestSim_ProposalReservesBudget(t *testing.T) {
	s := newTestSim(t)
	ctx := context.Background()
	id := createTask(s)

	ok, detail, err := s.ProposeAssignment(ctx, id, "w1", 4)
	if err != nil || !ok {
		t.Fatalf("ProposeAssignment() = %v, %q, %v", ok, detail, err)
	}

	b, err := s.AvailableBudget(ctx)
	if err != nil {
		t.Fatalf("AvailableBudget() error: %v", err)
	}
	if b.Total != 100 || b.Reserved != 4 || b.Available != 96 {
		t.Errorf("budget = %+v, want total 100, reserved 4, available 96", b)
	}

	task, err := s.Task(ctx, id)
	if err != nil {
		t.Fatalf("Task() error: %v", err)
	}
	if task.Status != domain.TaskAssigned || task.AssignedWorker != "w1" {
		t.Errorf("task = %v/%s, want ASSIGNED to w1", task.Status, task.AssignedWorker)
	}
}

func TestSim_DuplicateProposalRejected(t *testing.T) {
	s := newTestSim(t)
	ctx := context.Background()
	id := createTask(s)

	s.ProposeAssignment(ctx, id, "w1", 4)

	ok, _, err := s.ProposeAssignment(ctx, id, "w1", 4)
	if err != nil {
		t.Fatalf("ProposeAssignment() error: %v", err)
	}
	if ok {
		t.Error("duplicate proposal accepted, want idempotent rejection")
	}
}

func TestSim_ProposalRejections(t *testing.T) {
	s := newTestSim(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		taskID  int64
		worker  string
		payment float64
	}{
		{"unknown task", 999, "w1", 4},
		{"payment above ceiling", createTask(s), "w1", 6},
		{"payment above per-task cap", s.CreateTask(domain.CatDataAnalysis, 20, time.Now().Add(time.Hour), ""), "w1", 15},
		{"unknown worker", createTask(s), "ghost", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, detail, err := s.ProposeAssignment(ctx, tt.taskID, tt.worker, tt.payment)
			if err != nil {
				t.Fatalf("ProposeAssignment() error: %v", err)
			}
			if ok {
				t.Errorf("proposal accepted (%s), want rejection", detail)
			}
		})
	}
}

func TestSim_IneligibleWorkerRejected(t *testing.T) {
	s := newTestSim(t)
	ctx := context.Background()
	id := s.CreateTask(domain.CatResearch, 5, time.Now().Add(time.Hour), "")

	ok, detail, err := s.ProposeAssignment(ctx, id, "w1", 4)
	if err != nil {
		t.Fatalf("ProposeAssignment() error: %v", err)
	}
	if ok {
		t.Errorf("w1 accepted for unregistered category (%s), want rejection", detail)
	}
}

func TestSim_DailyLimitEnforced(t *testing.T) {
	s := newTestSim(t)
	ctx := context.Background()

	// Complete enough work to hit the 50/day limit at 10 per task.
	for i := 0; i < 5; i++ {
		id := s.CreateTask(domain.CatDataAnalysis, 10, time.Now().Add(time.Hour), "")
		if ok, detail, _ := s.ProposeAssignment(ctx, id, "w1", 10); !ok {
			t.Fatalf("proposal %d rejected: %s", i, detail)
		}
		s.Advance()
		if ok, detail, _ := s.SubmitVerdict(ctx, id, true); !ok {
			t.Fatalf("verdict %d rejected: %s", i, detail)
		}
	}

	remaining, err := s.RemainingDailyBudget(ctx)
	if err != nil {
		t.Fatalf("RemainingDailyBudget() error: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("remaining daily budget = %v, want 0", remaining)
	}

	id := s.CreateTask(domain.CatDataAnalysis, 10, time.Now().Add(time.Hour), "")
	ok, _, err := s.ProposeAssignment(ctx, id, "w1", 5)
	if err != nil {
		t.Fatalf("ProposeAssignment() error: %v", err)
	}
	if ok {
		t.Error("proposal accepted past the daily limit")
	}
}

func TestSim_AcceptedVerdictPaysOut(t *testing.T) {
	s := newTestSim(t)
	ctx := context.Background()
	id := createTask(s)

	s.ProposeAssignment(ctx, id, "w1", 4)
	s.Advance()

	ok, detail, err := s.SubmitVerdict(ctx, id, true)
	if err != nil || !ok {
		t.Fatalf("SubmitVerdict() = %v, %q, %v", ok, detail, err)
	}

	task, _ := s.Task(ctx, id)
	if task.Status != domain.TaskCompleted {
		t.Errorf("status = %v, want COMPLETED", task.Status)
	}
	if task.ActualPayment != 4 {
		t.Errorf("actual payment = %v, want 4", task.ActualPayment)
	}

	b, _ := s.AvailableBudget(ctx)
	if b.Total != 96 || b.Reserved != 0 {
		t.Errorf("budget after payout = %+v, want total 96, reserved 0", b)
	}

	profile, err := s.WorkerProfile(ctx, "w1")
	if err != nil {
		t.Fatalf("WorkerProfile() error: %v", err)
	}
	if profile.SuccessfulTasks != 1 || profile.TotalEarnings != 4 {
		t.Errorf("profile = %+v, want 1 success and 4 earnings", profile)
	}
	if profile.Reliability() <= 0.5 {
		t.Errorf("reliability = %v after success, want above 0.5", profile.Reliability())
	}
}

func TestSim_RejectedVerdictReleasesReservation(t *testing.T) {
	s := newTestSim(t)
	ctx := context.Background()
	id := createTask(s)

	s.ProposeAssignment(ctx, id, "w1", 4)
	s.Advance()

	ok, detail, err := s.SubmitVerdict(ctx, id, false)
	if err != nil || !ok {
		t.Fatalf("SubmitVerdict() = %v, %q, %v", ok, detail, err)
	}

	task, _ := s.Task(ctx, id)
	if task.Status != domain.TaskFailed {
		t.Errorf("status = %v, want FAILED", task.Status)
	}
	if task.ActualPayment != 0 {
		t.Errorf("actual payment = %v, want 0 on rejection", task.ActualPayment)
	}

	b, _ := s.AvailableBudget(ctx)
	if b.Total != 100 || b.Reserved != 0 {
		t.Errorf("budget after rejection = %+v, want full release", b)
	}

	profile, _ := s.WorkerProfile(ctx, "w1")
	if profile.Reliability() >= 0.5 {
		t.Errorf("reliability = %v after failure, want below 0.5", profile.Reliability())
	}
}

func TestSim_VerdictRequiresSubmission(t *testing.T) {
	s := newTestSim(t)
	ctx := context.Background()
	id := createTask(s)

	s.ProposeAssignment(ctx, id, "w1", 4)

	ok, _, err := s.SubmitVerdict(ctx, id, true)
	if err != nil {
		t.Fatalf("SubmitVerdict() error: %v", err)
	}
	if ok {
		t.Error("verdict applied to an unsubmitted task")
	}
}

func TestSim_ExpiredProposalCancelsTask(t *testing.T) {
	s := newTestSim(t)
	ctx := context.Background()
	id := s.CreateTask(domain.CatDataAnalysis, 5, time.Now().Add(-time.Minute), "")

	ok, _, err := s.ProposeAssignment(ctx, id, "w1", 4)
	if err != nil {
		t.Fatalf("ProposeAssignment() error: %v", err)
	}
	if ok {
		t.Fatal("proposal accepted for an expired task")
	}

	task, _ := s.Task(ctx, id)
	if task.Status != domain.TaskCancelled {
		t.Errorf("status = %v, want CANCELLED", task.Status)
	}
}

func TestSim_OpenTaskIDsAndEligibleWorkersSorted(t *testing.T) {
	s := newTestSim(t)
	s.RegisterWorker("a-worker", 0.5, domain.CatDataAnalysis)
	ctx := context.Background()

	first := createTask(s)
	second := createTask(s)

	ids, err := s.OpenTaskIDs(ctx)
	if err != nil {
		t.Fatalf("OpenTaskIDs() error: %v", err)
	}
	if len(ids) != 2 || ids[0] != first || ids[1] != second {
		t.Errorf("OpenTaskIDs() = %v, want [%d %d]", ids, first, second)
	}

	workers, err := s.EligibleWorkers(ctx, domain.CatDataAnalysis)
	if err != nil {
		t.Fatalf("EligibleWorkers() error: %v", err)
	}
	if len(workers) != 2 || workers[0] != "a-worker" || workers[1] != "w1" {
		t.Errorf("EligibleWorkers() = %v, want sorted [a-worker w1]", workers)
	}
}

func TestSim_AdvanceAttachesResultForGoodWorker(t *testing.T) {
	s := newTestSim(t) // w1 has success rate 1.0
	ctx := context.Background()
	id := createTask(s)

	s.ProposeAssignment(ctx, id, "w1", 4)
	s.Advance()

	task, _ := s.Task(ctx, id)
	if task.Status != domain.TaskSubmitted {
		t.Fatalf("status = %v, want SUBMITTED", task.Status)
	}
	if task.ResultHash == "" {
		t.Error("perfect worker submitted without a result fingerprint")
	}
}
