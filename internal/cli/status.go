package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/stipend-works/stipend/internal/app/coordinator"
	"github.com/stipend-works/stipend/internal/daemon"
)

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "Address of the running coordinator (defaults to config)")
	rootCmd.AddCommand(statusCmd)
}

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running coordinator's status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr := statusAddr
	if addr == "" {
		cfg, err := daemon.LoadConfig()
		if err != nil {
			return err
		}
		addr = fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/status")
	if err != nil {
		return fmt.Errorf("coordinator not reachable at %s (is it running?): %w", addr, err)
	}
	defer resp.Body.Close()

	var s coordinator.Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	fmt.Printf("Cycles:           %d\n", s.Cycles)
	fmt.Printf("Proposals:        %d\n", s.Proposals)
	fmt.Printf("Verifications:    %d\n", s.Verifications)
	fmt.Printf("Outcomes:         %d\n", s.Outcomes)
	fmt.Printf("Exploration rate: %.3f\n", s.ExplorationRate)
	fmt.Printf("Success rate:     %.1f%%\n", s.SuccessRate*100)
	fmt.Printf("ROI:              %.2f\n", s.ROI)
	fmt.Printf("Known workers:    %d\n", s.KnownWorkers)
	fmt.Printf("Recorded tasks:   %d\n", s.RecordedTasks)
	if !s.LastCycleAt.IsZero() {
		fmt.Printf("Last cycle:       %s\n", s.LastCycleAt.Format(time.RFC3339))
	}
	return nil
}
