package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/stipend-works/stipend/internal/daemon"
)

func init() {
	runCmd.Flags().StringVar(&runHost, "host", "", "Host to listen on (overrides config)")
	runCmd.Flags().IntVar(&runPort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(runCmd)
}

var (
	runHost string
	runPort int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the coordinator and its status API",
	Long:  `Start the polling loop against the configured ledger and serve the status API.`,
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}

	// Override config from flags
	if runHost != "" {
		d.Config.API.Host = runHost
	}
	if runPort > 0 {
		d.Config.API.Port = runPort
	}

	return d.Serve(context.Background())
}
