// Package pipeline sequences the per-item stages (image acquisition, stats
// accounting, persistence) and owns the run-level counters.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yunqi-data/bookharvest/internal/book"
	"github.com/yunqi-data/bookharvest/internal/images"
	"github.com/yunqi-data/bookharvest/internal/metrics"
	"github.com/yunqi-data/bookharvest/internal/store"
)

// Counters are the run-level tallies reported at crawl end.
type Counters struct {
	ImageURLs   int `json:"image_urls"`
	ImagesSaved int `json:"images_saved"`
	ItemsSaved  int `json:"items_saved"`
	ItemsFailed int `json:"items_failed"`
}

// ImagesFailed derives the failed download count.
func (c Counters) ImagesFailed() int {
	return c.ImageURLs - c.ImagesSaved
}

// Pipeline runs every completed item through the fixed stage order. It is
// safe to call HandleItem concurrently for different items.
type Pipeline struct {
	downloader *images.Downloader
	store      store.Store
	logger     *zap.Logger

	runID     string
	startedAt time.Time

	mu sync.Mutex
	c  Counters
}

// New constructs a Pipeline with a fresh run ID.
func New(downloader *images.Downloader, st store.Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		downloader: downloader,
		store:      st,
		logger:     logger,
		runID:      uuid.NewString(),
		startedAt:  time.Now().UTC(),
	}
}

// RunID identifies this run in logs and the stats endpoint.
func (p *Pipeline) RunID() string { return p.runID }

// StartedAt reports when the run began.
func (p *Pipeline) StartedAt() time.Time { return p.startedAt }

// HandleItem runs one item through image acquisition, stats accounting, and
// persistence. A persistence failure is counted and logged with the item's
// identity but never propagated; later items continue regardless.
func (p *Pipeline) HandleItem(ctx context.Context, item *book.Item) {
	res := p.downloader.Process(ctx, item)
	metrics.ImagesObserved(res.Saved, res.Attempted-res.Saved)

	p.mu.Lock()
	p.c.ImageURLs += res.Attempted
	p.c.ImagesSaved += res.Saved
	p.mu.Unlock()

	if err := p.store.SaveBook(ctx, item); err != nil {
		metrics.ItemPersisted(false)
		p.mu.Lock()
		p.c.ItemsFailed++
		p.mu.Unlock()
		p.logger.Error("persist item failed",
			zap.String("title", item.Title),
			zap.String("book_url", item.BookURL),
			zap.Error(err),
		)
		return
	}

	metrics.ItemPersisted(true)
	p.mu.Lock()
	p.c.ItemsSaved++
	p.mu.Unlock()
	p.logger.Debug("item persisted",
		zap.String("title", item.Title),
		zap.String("book_url", item.BookURL),
		zap.Int("images", len(item.Images)),
		zap.Int("tags", len(item.Tags)),
	)
}

// Snapshot returns a copy of the current counters.
func (p *Pipeline) Snapshot() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c
}

// LogSummary reports the end-of-run tallies.
func (p *Pipeline) LogSummary() {
	c := p.Snapshot()
	rate := 0.0
	if c.ImageURLs > 0 {
		rate = float64(c.ImagesSaved) / float64(c.ImageURLs) * 100
	}
	p.logger.Info("run summary",
		zap.String("run_id", p.runID),
		zap.Duration("elapsed", time.Since(p.startedAt)),
		zap.Int("image_urls", c.ImageURLs),
		zap.Int("images_saved", c.ImagesSaved),
		zap.Int("images_failed", c.ImagesFailed()),
		zap.Float64("image_success_rate_pct", rate),
		zap.Int("items_saved", c.ItemsSaved),
		zap.Int("items_failed", c.ItemsFailed),
	)
}
