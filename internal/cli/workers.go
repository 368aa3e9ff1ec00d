package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stipend-works/stipend/internal/domain"
)

func init() {
	workersCmd.Flags().StringVar(&workersCategory, "category", "other", "Task category to rank for")
	workersCmd.Flags().IntVar(&workersLimit, "limit", 10, "Maximum workers to show")
	rootCmd.AddCommand(workersCmd)
}

var (
	workersCategory string
	workersLimit    int
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Rank known workers for a task category",
	RunE:  runWorkers,
}

func runWorkers(cmd *cobra.Command, args []string) error {
	cat, err := parseCategory(workersCategory)
	if err != nil {
		return err
	}

	mem, db, err := openMemory()
	if err != nil {
		return err
	}
	defer db.Close()

	ranked := mem.BestWorkersFor(cat, workersLimit)
	if len(ranked) == 0 {
		fmt.Println("No workers above the reliability threshold yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tRELIABILITY\tSUCCESS\tTASKS\tEARNINGS")
	for _, addr := range ranked {
		rec := mem.GetOrCreateWorker(addr)
		fmt.Fprintf(w, "%s\t%.2f\t%.1f%%\t%d\t%.4f\n",
			rec.Address,
			rec.Reliability,
			rec.SuccessRate()*100,
			rec.TotalTasks,
			rec.TotalEarnings,
		)
	}
	return w.Flush()
}

// parseCategory maps a category label to its domain value.
func parseCategory(name string) (domain.TaskCategory, error) {
	switch strings.ToLower(name) {
	case "data_analysis":
		return domain.CatDataAnalysis, nil
	case "text_generation":
		return domain.CatTextGeneration, nil
	case "code_review":
		return domain.CatCodeReview, nil
	case "research":
		return domain.CatResearch, nil
	case "computation":
		return domain.CatComputation, nil
	case "other":
		return domain.CatOther, nil
	default:
		return 0, fmt.Errorf("unknown category %q", name)
	}
}
