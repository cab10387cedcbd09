// Package cli implements the ise-enrich command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/sentinelworks/ise-enrich/internal/config"
	"github.com/sentinelworks/ise-enrich/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ise-enrich",
	Short: "ISE log-to-asset enrichment pipeline",
	Long: `ise-enrich correlates Cisco ISE authentication events indexed in
Elasticsearch with device and user records from an Axonius asset
inventory, and writes the resolved identity fields back onto the event
documents.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
}

// setup loads configuration and initializes logging. Called from the
// PreRun of every subcommand that talks to external systems, so a broken
// config fails at startup rather than mid-cycle.
func setup(_ *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err = logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
		cfg.Logging.File,
	)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	return nil
}
