// Package fetch defines the fetch engine contract consumed by the spider and
// the image pipeline, plus a Colly-backed implementation of it.
package fetch

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Request captures everything needed to fetch a URL.
type Request struct {
	URL     string
	Headers http.Header

	// Meta travels with the request and is echoed back on failure so errors
	// can be attributed to the item being processed.
	Meta map[string]string

	// Timeout overrides the engine default when > 0.
	Timeout time.Duration
}

// Response is the result returned by a Fetcher implementation.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher fetches a URL and returns the body plus metadata. The same URL may
// legitimately be fetched more than once; implementations must not dedupe.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// EnsureScheme promotes scheme-less URLs to https: "//host/a.jpg" becomes
// "https://host/a.jpg" and a bare "host/a.jpg" is prefixed with "https://".
// URLs already carrying http(s) pass through unchanged. Empty input stays
// empty.
func EnsureScheme(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return "https://" + raw
}
