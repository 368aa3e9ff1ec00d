package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stipend-works/stipend/internal/app/coordinator"
	"github.com/stipend-works/stipend/internal/app/memory"
	"github.com/stipend-works/stipend/internal/app/strategy"
	"github.com/stipend-works/stipend/internal/domain"
	"github.com/stipend-works/stipend/internal/infra/ledger"
	"github.com/stipend-works/stipend/internal/infra/sqlite"
)

func init() {
	simulateCmd.Flags().IntVar(&simCycles, "cycles", 50, "Polling cycles to run")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "RNG seed (0 = time-based)")
	rootCmd.AddCommand(simulateCmd)
}

var (
	simCycles int
	simSeed   int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the coordinator against a simulated ledger",
	Long: `Run a self-contained simulation: a ledger with a mixed-quality worker
roster, a stream of tasks, and the full decide/verify/learn loop.
State is written to a throwaway directory and discarded afterwards.`,
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	dir, err := os.MkdirTemp("", "stipend-sim-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	db, err := sqlite.Open(dir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	mem, err := memory.Load(db)
	if err != nil {
		return err
	}

	engine := strategy.New(mem, strategy.Config{Seed: simSeed})

	sim := ledger.NewSim(ledger.SimConfig{
		InitialFunds:    1000,
		DailyLimit:      100,
		MaxSpendPerTask: 10,
		Seed:            simSeed,
	})

	// Mixed-quality roster across the common categories.
	cats := []domain.TaskCategory{
		domain.CatDataAnalysis,
		domain.CatTextGeneration,
		domain.CatCodeReview,
	}
	sim.RegisterWorker("worker-alpha", 0.9, cats...)
	sim.RegisterWorker("worker-beta", 0.6, cats...)
	sim.RegisterWorker("worker-gamma", 0.3, cats...)

	coord := coordinator.New(coordinator.Config{
		CallTimeout:  5 * time.Second,
		MetricsEvery: 10,
	}, sim, mem, engine, nil)

	ctx := context.Background()
	for i := 0; i < simCycles; i++ {
		cat := cats[i%len(cats)]
		sim.CreateTask(cat, 2.0, time.Now().Add(time.Hour), "")

		coord.Tick(ctx) // propose
		sim.Advance()   // workers submit
		coord.Tick(ctx) // verify and learn
	}

	s := coord.Status()
	fmt.Printf("\nSimulation complete: %d cycles\n", simCycles)
	fmt.Printf("Proposals:        %d\n", s.Proposals)
	fmt.Printf("Verifications:    %d\n", s.Verifications)
	fmt.Printf("Outcomes:         %d\n", s.Outcomes)
	fmt.Printf("Success rate:     %.1f%%\n", s.SuccessRate*100)
	fmt.Printf("ROI:              %.2f\n", s.ROI)
	fmt.Printf("Exploration rate: %.3f\n", s.ExplorationRate)

	summary := mem.MetricsSummary()
	fmt.Printf("\nTop workers:\n")
	for _, tw := range summary.TopWorkers {
		fmt.Printf("  %-14s reliability %.2f, success %.1f%%, %d tasks\n",
			tw.Address, tw.Reliability, tw.SuccessRate*100, tw.TotalTasks)
	}
	return nil
}
