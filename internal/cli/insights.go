package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stipend-works/stipend/internal/app/memory"
	"github.com/stipend-works/stipend/internal/daemon"
	"github.com/stipend-works/stipend/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(insightsCmd)
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show learning trends from the recorded task history",
	RunE:  runInsights,
}

func runInsights(cmd *cobra.Command, args []string) error {
	mem, db, err := openMemory()
	if err != nil {
		return err
	}
	defer db.Close()

	ins := mem.LearningInsights()
	if ins.Status == "insufficient_data" {
		fmt.Printf("%s (recorded tasks: %d)\n", ins.Message, ins.TotalTasks)
		return nil
	}

	fmt.Printf("Status:            %s\n", ins.Message)
	fmt.Printf("Recorded tasks:    %d\n", ins.TotalTasks)
	fmt.Printf("Early period:      %d tasks, %.1f%% success, avg cost %.4f\n",
		ins.Early.Tasks, ins.Early.SuccessRate*100, ins.Early.AvgCost)
	fmt.Printf("Recent period:     %d tasks, %.1f%% success, avg cost %.4f\n",
		ins.Recent.Tasks, ins.Recent.SuccessRate*100, ins.Recent.AvgCost)
	fmt.Printf("Success change:    %+.1f%%\n", ins.SuccessRateChange)
	fmt.Printf("Cost reduction:    %+.1f%%\n", ins.CostReduction)
	fmt.Printf("Decision quality:  %.2f\n", ins.DecisionQuality)
	return nil
}

// openMemory loads the outcome memory from the configured store.
func openMemory() (*memory.Memory, *sqlite.DB, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	dir := cfg.Storage.Dir
	if dir == "" {
		dir = daemon.StipendHome()
	}

	db, err := sqlite.Open(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	mem, err := memory.Load(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return mem, db, nil
}
