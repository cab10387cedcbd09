package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Execute a single enrichment cycle and exit",
	PreRunE: setup,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		report := a.controller.RunCycle(ctx)
		if report.Fatal {
			return fmt.Errorf("pipeline run failed: %s", report.FatalReason)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
