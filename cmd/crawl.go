package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yunqi-data/bookharvest/internal/api"
	"github.com/yunqi-data/bookharvest/internal/config"
	"github.com/yunqi-data/bookharvest/internal/fetch"
	"github.com/yunqi-data/bookharvest/internal/images"
	"github.com/yunqi-data/bookharvest/internal/metrics"
	"github.com/yunqi-data/bookharvest/internal/pipeline"
	"github.com/yunqi-data/bookharvest/internal/spider"
	"github.com/yunqi-data/bookharvest/internal/store"
	"github.com/yunqi-data/bookharvest/internal/store/postgres"
	"github.com/yunqi-data/bookharvest/internal/store/sqlite"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs the ingestion pipeline",
		Long: `Walks listing pages up to the configured bound, enriches every book from
its detail page, downloads covers, and persists each record into the
selected backend. Per-item failures are counted, never fatal.`,
		RunE: runCrawl,
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	metrics.Init()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage failures at startup are fatal; the run cannot proceed blind.
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn("close store", zap.Error(cerr))
		}
	}()
	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	fetcher := fetch.NewCollyFetcher(fetch.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		Timeout:       cfg.Crawler.Timeout(),
		MaxRetries:    cfg.Crawler.MaxRetries,
		RetryStatuses: cfg.Crawler.RetryStatuses,
		Delay:         cfg.Crawler.Delay(),
	}, logger)

	downloader, err := images.NewDownloader(images.Config{
		Dir:       cfg.Images.Dir,
		UserAgent: cfg.Crawler.UserAgent,
		Referer:   cfg.Images.Referer,
		Timeout:   cfg.Images.Timeout(),
	}, fetcher, logger)
	if err != nil {
		return fmt.Errorf("init downloader: %w", err)
	}

	pipe := pipeline.New(downloader, st, logger)
	logger.Info("starting crawl",
		zap.String("run_id", pipe.RunID()),
		zap.String("start_url", cfg.Crawler.StartURL),
		zap.Int("max_pages", cfg.Crawler.MaxPages),
		zap.String("backend", cfg.Store.Backend),
	)

	var ops *api.Server
	if cfg.Server.Enabled {
		ops = api.New(cfg.Server.Port, pipe, logger)
		go ops.Start()
	}

	crawlErr := spider.New(spider.Config{
		StartURL: cfg.Crawler.StartURL,
		MaxPages: cfg.Crawler.MaxPages,
	}, fetcher, pipe, logger).Run(ctx)

	pipe.LogSummary()

	if ops != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ops.Shutdown(shutdownCtx)
	}

	if crawlErr != nil {
		logger.Error("crawl ended with error", zap.Error(crawlErr))
		return crawlErr
	}
	logger.Info("crawl finished")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		return sqlite.Open(cfg.Store.SQLitePath, logger)
	case config.BackendPostgres:
		return postgres.Open(ctx, postgres.Config{
			DSN:      cfg.Store.DSN,
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Store.Backend)
	}
}
