package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yunqi-data/bookharvest/internal/report"
	"github.com/yunqi-data/bookharvest/internal/store"
)

type readableStore interface {
	store.Reader
	Close() error
}

func newReportCmd() *cobra.Command {
	var topN int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Prints an aggregation snapshot of the harvested dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			reader, ok := st.(readableStore)
			if !ok {
				return fmt.Errorf("backend %q does not support reporting", cfg.Store.Backend)
			}
			defer func() {
				if cerr := reader.Close(); cerr != nil {
					logger.Warn("close store", zap.Error(cerr))
				}
			}()

			snap, err := report.Build(cmd.Context(), reader, topN)
			if err != nil {
				return fmt.Errorf("build report: %w", err)
			}
			return snap.Write(cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&topN, "top-tags", 10, "how many tags to list")
	return cmd
}
