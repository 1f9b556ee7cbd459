package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/valuation-wizard/internal/config"
	"github.com/joelkehle/valuation-wizard/internal/logging"
)

// app carries what PersistentPreRunE loads for every subcommand.
type app struct {
	configPath string
	verbose    bool
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "valuation-wizard",
		Short: "SaaS valuation lead-capture wizard",
		Long: `valuation-wizard serves the embeddable valuation wizard and its results
pages, and exposes the scoring engine and share-link codec on the command line.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			level := cfg.Logging.Level
			if a.verbose {
				level = "debug"
			}
			logger, err := logging.New(level, cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "valuation-wizard.yaml", "Config file (missing file means defaults)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newScoreCmd(a))
	root.AddCommand(newShareCmd(a))
	root.AddCommand(newConfigCmd(a))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
