// Package cmd defines the CLI commands for the bookharvest executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yunqi-data/bookharvest/internal/config"
	"github.com/yunqi-data/bookharvest/internal/logging"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookharvest",
		Short: "Harvests book records from the listing site into a relational store.",
		Long: `bookharvest walks the site's paginated listing, enriches each book from
its detail page, downloads cover images, and persists everything into a
normalized schema on either an embedded SQLite file or a Postgres server.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newReportCmd())
	return cmd
}

// loadEnvironment resolves config and builds the logger for a subcommand.
func loadEnvironment() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
