package spider

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/yunqi-data/bookharvest/internal/book"
	"github.com/yunqi-data/bookharvest/internal/fetch"
	"github.com/yunqi-data/bookharvest/internal/metrics"
)

// Sink receives each completed item. The pipeline orchestrator implements
// it; per-item failures stay inside the sink and never abort the crawl.
type Sink interface {
	HandleItem(ctx context.Context, item *book.Item)
}

// Config bounds a crawl run.
type Config struct {
	StartURL string
	// MaxPages caps how many listing pages are visited.
	MaxPages int
}

// Spider drives the listing -> detail -> next-listing traversal.
type Spider struct {
	cfg     Config
	fetcher fetch.Fetcher
	sink    Sink
	logger  *zap.Logger
}

// New constructs a Spider.
func New(cfg Config, fetcher fetch.Fetcher, sink Sink, logger *zap.Logger) *Spider {
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	return &Spider{cfg: cfg, fetcher: fetcher, sink: sink, logger: logger}
}

// Run walks listing pages starting at cfg.StartURL until the page bound is
// reached, the trailing page segment stops parsing, or ctx is canceled.
// Items already emitted stay valid regardless of how the traversal ends.
func (s *Spider) Run(ctx context.Context) error {
	pageURL := s.cfg.StartURL
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl canceled: %w", err)
		}
		if err := s.crawlListing(ctx, pageURL); err != nil {
			return err
		}

		next, nextPage, err := NextListingURL(pageURL)
		if err != nil {
			// Terminal but successful: results gathered so far remain valid.
			s.logger.Warn("cannot derive next listing page; halting traversal",
				zap.String("url", pageURL),
				zap.Error(err),
			)
			return nil
		}
		if nextPage > s.cfg.MaxPages {
			s.logger.Info("reached page bound",
				zap.Int("max_pages", s.cfg.MaxPages),
			)
			return nil
		}
		s.logger.Info("advancing to next listing page",
			zap.Int("page", nextPage),
			zap.Int("max_pages", s.cfg.MaxPages),
		)
		pageURL = next
	}
}

func (s *Spider) crawlListing(ctx context.Context, pageURL string) error {
	resp, err := s.fetcher.Fetch(ctx, fetch.Request{URL: pageURL})
	if err != nil {
		metrics.PageFetched("listing", "error")
		return fmt.Errorf("fetch listing %s: %w", pageURL, err)
	}
	metrics.PageFetched("listing", "ok")

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return fmt.Errorf("parse listing %s: %w", pageURL, err)
	}

	items := ParseListing(doc)
	s.logger.Info("parsed listing page",
		zap.String("url", pageURL),
		zap.Int("items", len(items)),
	)

	for i := range items {
		item := &items[i]
		if item.BookURL != "" {
			s.enrich(ctx, item)
		} else {
			s.logger.Debug("listing row has no detail link; emitting as-is",
				zap.String("title", item.Title),
			)
		}
		s.sink.HandleItem(ctx, item)
	}
	return nil
}

// enrich fetches the detail page and merges its fields into item. A failed
// detail fetch downgrades the item to its listing fields instead of losing
// it.
func (s *Spider) enrich(ctx context.Context, item *book.Item) {
	resp, err := s.fetcher.Fetch(ctx, fetch.Request{URL: item.BookURL})
	if err != nil {
		metrics.PageFetched("detail", "error")
		s.logger.Warn("detail fetch failed; keeping listing fields",
			zap.String("title", item.Title),
			zap.String("book_url", item.BookURL),
			zap.Error(err),
		)
		return
	}
	metrics.PageFetched("detail", "ok")

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		s.logger.Warn("detail parse failed; keeping listing fields",
			zap.String("book_url", item.BookURL),
			zap.Error(err),
		)
		return
	}
	ParseDetail(doc).Apply(item)
}
