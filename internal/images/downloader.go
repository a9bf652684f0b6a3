package images

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yunqi-data/bookharvest/internal/book"
	"github.com/yunqi-data/bookharvest/internal/fetch"
)

// Config controls the downloader.
type Config struct {
	// Dir is the image root; files land under Dir/full.
	Dir       string
	UserAgent string
	// Referer is sent with every image request; the image host rejects
	// requests without one.
	Referer string
	// Timeout overrides the fetch engine default for image downloads.
	Timeout time.Duration
}

// Result tallies one item's download outcomes.
type Result struct {
	Attempted int
	Saved     int
}

// Downloader resolves an item's cover URLs into files on disk.
type Downloader struct {
	cfg     Config
	fetcher fetch.Fetcher
	logger  *zap.Logger
}

// NewDownloader creates the image root (including the full subdirectory) and
// returns a Downloader.
func NewDownloader(cfg Config, fetcher fetch.Fetcher, logger *zap.Logger) (*Downloader, error) {
	if err := os.MkdirAll(filepath.Join(cfg.Dir, "full"), 0o750); err != nil {
		return nil, fmt.Errorf("create image dir %s: %w", cfg.Dir, err)
	}
	return &Downloader{cfg: cfg, fetcher: fetcher, logger: logger}, nil
}

// Process downloads every usable URL in item.ImageURLs and rebuilds
// item.Images from the successes, in source order. Failures are logged with
// their classification and dropped; an item whose downloads all fail keeps
// an empty Images slice and is still valid downstream.
func (d *Downloader) Process(ctx context.Context, item *book.Item) Result {
	item.Images = item.Images[:0]
	var res Result
	var failedURLs []string

	for _, raw := range item.ImageURLs {
		imgURL := fetch.EnsureScheme(strings.TrimSpace(raw))
		if imgURL == "" {
			d.logger.Warn("skipping empty image url", zap.String("title", item.Title))
			continue
		}
		res.Attempted++

		resp, err := d.fetcher.Fetch(ctx, fetch.Request{
			URL:     imgURL,
			Headers: d.headers(),
			Meta: map[string]string{
				"title":    item.Title,
				"book_url": item.BookURL,
			},
			Timeout: d.cfg.Timeout,
		})
		if err != nil {
			d.logFailure(item, imgURL, err)
			failedURLs = append(failedURLs, imgURL)
			continue
		}

		rel := FilePath(imgURL, item.Title)
		if err := d.write(rel, resp.Body); err != nil {
			d.logger.Error("write image failed",
				zap.String("title", item.Title),
				zap.String("path", rel),
				zap.Error(err),
			)
			failedURLs = append(failedURLs, imgURL)
			continue
		}

		item.Images = append(item.Images, book.Image{SourceURL: imgURL, LocalPath: rel})
		res.Saved++
		d.logger.Debug("image saved",
			zap.String("title", item.Title),
			zap.String("path", rel),
		)
	}

	if res.Attempted > 0 && res.Saved == 0 {
		d.logger.Warn("all image downloads failed",
			zap.String("title", item.Title),
			zap.String("book_url", item.BookURL),
			zap.Strings("failed_urls", failedURLs),
		)
	}
	return res
}

func (d *Downloader) write(rel string, body []byte) error {
	target := filepath.Join(d.cfg.Dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create dir for %s: %w", target, err)
	}
	if err := os.WriteFile(target, body, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

// headers returns the browser-like header set sent with every image request.
func (d *Downloader) headers() http.Header {
	h := http.Header{}
	if d.cfg.UserAgent != "" {
		h.Set("User-Agent", d.cfg.UserAgent)
	}
	h.Set("Accept", "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	if d.cfg.Referer != "" {
		h.Set("Referer", d.cfg.Referer)
	}
	return h
}

// logFailure logs one download failure with its classification. No category
// is retried here; retries already happened inside the fetch engine.
func (d *Downloader) logFailure(item *book.Item, imgURL string, err error) {
	fields := []zap.Field{
		zap.String("title", item.Title),
		zap.String("book_url", item.BookURL),
		zap.String("image_url", imgURL),
		zap.Error(err),
	}
	var fe *fetch.Error
	if errors.As(err, &fe) {
		fields = append(fields, zap.String("kind", fe.Kind.String()))
		switch fe.Kind {
		case fetch.KindTimeout:
			d.logger.Error("image download timed out; consider raising the image timeout", fields...)
		case fetch.KindDNS:
			d.logger.Error("image host did not resolve", fields...)
		case fetch.KindConnRefused:
			d.logger.Error("image host refused the connection", fields...)
		case fetch.KindHTTPStatus:
			d.logger.Error("image download rejected",
				append(fields, zap.Int("status_code", fe.StatusCode))...)
		default:
			d.logger.Error("image download failed", fields...)
		}
		return
	}
	d.logger.Error("image download failed", fields...)
}
