package images

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yunqi-data/bookharvest/internal/book"
	"github.com/yunqi-data/bookharvest/internal/fetch"
)

// fakeFetcher serves canned bodies and records the requests it saw.
type fakeFetcher struct {
	bodies map[string][]byte
	reqs   []fetch.Request
}

func (f *fakeFetcher) Fetch(_ context.Context, req fetch.Request) (fetch.Response, error) {
	f.reqs = append(f.reqs, req)
	body, ok := f.bodies[req.URL]
	if !ok {
		return fetch.Response{}, &fetch.Error{Kind: fetch.KindHTTPStatus, URL: req.URL, StatusCode: 503}
	}
	return fetch.Response{URL: req.URL, StatusCode: 200, Body: body}, nil
}

func newTestDownloader(t *testing.T, fetcher fetch.Fetcher) (*Downloader, string) {
	t.Helper()
	dir := t.TempDir()
	d, err := NewDownloader(Config{
		Dir:     dir,
		Referer: "https://b.faloo.com/",
	}, fetcher, zap.NewNop())
	require.NoError(t, err)
	return d, dir
}

func TestProcessPartialFailureKeepsSuccesses(t *testing.T) {
	t.Parallel()

	ok := "https://img.faloo.com/covers/good.jpg"
	fetcher := &fakeFetcher{bodies: map[string][]byte{ok: []byte("jpegbytes")}}
	d, dir := newTestDownloader(t, fetcher)

	item := &book.Item{
		Title:   "某书",
		BookURL: "https://b.faloo.com/1.html",
		ImageURLs: []string{
			"https://img.faloo.com/covers/bad1.jpg",
			ok,
			"https://img.faloo.com/covers/bad2.jpg",
		},
	}

	res := d.Process(context.Background(), item)
	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 1, res.Saved)

	require.Len(t, item.Images, 1)
	assert.Equal(t, ok, item.Images[0].SourceURL)
	assert.Equal(t, "full/good.jpg", item.Images[0].LocalPath)

	data, err := os.ReadFile(filepath.Join(dir, "full", "good.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(data))
}

func TestProcessNormalizesAndSkipsEmptyURLs(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"https://img.faloo.com/covers/a.jpg": []byte("x"),
	}}
	d, _ := newTestDownloader(t, fetcher)

	item := &book.Item{
		Title:     "某书",
		ImageURLs: []string{"", "  ", "//img.faloo.com/covers/a.jpg"},
	}

	res := d.Process(context.Background(), item)
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, 1, res.Saved)

	require.Len(t, fetcher.reqs, 1)
	req := fetcher.reqs[0]
	assert.Equal(t, "https://img.faloo.com/covers/a.jpg", req.URL)
	assert.Equal(t, "https://b.faloo.com/", req.Headers.Get("Referer"))
	assert.Equal(t, "某书", req.Meta["title"])
}

func TestProcessAllFailuresIsNotFatal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{bodies: map[string][]byte{}}
	d, _ := newTestDownloader(t, fetcher)

	item := &book.Item{
		Title:     "某书",
		ImageURLs: []string{"https://img.faloo.com/covers/a.jpg"},
	}

	res := d.Process(context.Background(), item)
	assert.Equal(t, 1, res.Attempted)
	assert.Zero(t, res.Saved)
	assert.Empty(t, item.Images, "a fully failed image stage leaves images empty, never nil-item")
}

func TestProcessClearsStaleImages(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{bodies: map[string][]byte{}}
	d, _ := newTestDownloader(t, fetcher)

	item := &book.Item{
		Title:  "某书",
		Images: []book.Image{{SourceURL: "stale", LocalPath: "stale"}},
	}

	d.Process(context.Background(), item)
	assert.Empty(t, item.Images)
}
