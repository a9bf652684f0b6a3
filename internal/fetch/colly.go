package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Config controls engine behavior. Zero values fall back to the defaults
// below.
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RetryStatuses lists the HTTP statuses worth retrying. Timeouts, DNS
	// failures, and refused connections are always retried.
	RetryStatuses []int
	// Delay is the politeness delay applied between requests to a domain.
	Delay          time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

const (
	defaultTimeout        = 15 * time.Second
	defaultBackoffInitial = 250 * time.Millisecond
	defaultBackoffMax     = 2 * time.Second
)

// DefaultRetryStatuses returns the statuses retried when none are configured.
func DefaultRetryStatuses() []int {
	return []int{500, 502, 503, 504, 408, 403, 404, 429}
}

// CollyFetcher implements Fetcher using the Colly collector.
type CollyFetcher struct {
	cfg     Config
	retry   map[int]struct{}
	base    *colly.Collector
	logger  *zap.Logger
	timeout time.Duration
}

// NewCollyFetcher builds a CollyFetcher.
func NewCollyFetcher(cfg Config, logger *zap.Logger) *CollyFetcher {
	base := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	statuses := cfg.RetryStatuses
	if statuses == nil {
		statuses = DefaultRetryStatuses()
	}
	retry := make(map[int]struct{}, len(statuses))
	for _, code := range statuses {
		retry[code] = struct{}{}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &CollyFetcher{
		cfg:     cfg,
		retry:   retry,
		base:    base,
		logger:  logger,
		timeout: timeout,
	}
}

// Fetch executes a single HTTP GET, retrying transient failures up to the
// configured retry count with exponential backoff.
func (f *CollyFetcher) Fetch(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := f.fetchOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt >= f.cfg.MaxRetries || !f.retryable(err) {
			return Response{}, err
		}
		f.logger.Debug("retrying fetch",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if err := f.backoff(ctx, attempt); err != nil {
			return Response{}, fmt.Errorf("fetch canceled during backoff: %w", lastErr)
		}
	}
}

func (f *CollyFetcher) fetchOnce(ctx context.Context, req Request) (Response, error) {
	collector := f.base.Clone()

	timeout := f.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	collector.SetRequestTimeout(timeout)
	if f.cfg.Delay > 0 {
		if err := collector.Limit(&colly.LimitRule{DomainGlob: "*", Delay: f.cfg.Delay}); err != nil {
			return Response{}, fmt.Errorf("set collector limit: %w", err)
		}
	}

	var (
		result     Response
		statusCode int
		fetchErr   error
	)
	start := time.Now()

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range req.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	visitErr, err := f.runCollector(ctx, collector, req.URL)
	if err != nil {
		return Response{}, err
	}
	if fetchErr == nil {
		fetchErr = visitErr
	}
	if fetchErr != nil {
		if statusCode > 0 && (statusCode < 200 || statusCode >= 300) {
			return Response{}, &Error{Kind: KindHTTPStatus, URL: req.URL, StatusCode: statusCode, Err: fetchErr}
		}
		return Response{}, Classify(req.URL, fetchErr)
	}
	return result, nil
}

// runCollector runs Visit in a goroutine so a canceled context can abandon
// the in-flight request. The visit error is returned separately from the
// cancellation error so the caller can classify it against the response
// status captured by the hooks.
func (f *CollyFetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) (error, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		return err, nil
	}
}

func (f *CollyFetcher) retryable(err error) bool {
	fe := Classify("", err)
	switch fe.Kind {
	case KindTimeout, KindDNS, KindConnRefused:
		return true
	case KindHTTPStatus:
		_, ok := f.retry[fe.StatusCode]
		return ok
	default:
		return false
	}
}

func (f *CollyFetcher) backoff(ctx context.Context, attempt int) error {
	initial := f.cfg.BackoffInitial
	if initial <= 0 {
		initial = defaultBackoffInitial
	}
	max := f.cfg.BackoffMax
	if max <= 0 {
		max = defaultBackoffMax
	}
	delay := initial << attempt
	if delay > max {
		delay = max
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
