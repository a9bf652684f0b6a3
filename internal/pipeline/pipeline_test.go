package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yunqi-data/bookharvest/internal/book"
	"github.com/yunqi-data/bookharvest/internal/fetch"
	"github.com/yunqi-data/bookharvest/internal/images"
)

type fakeFetcher struct {
	bodies map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, req fetch.Request) (fetch.Response, error) {
	body, ok := f.bodies[req.URL]
	if !ok {
		return fetch.Response{}, &fetch.Error{Kind: fetch.KindHTTPStatus, URL: req.URL, StatusCode: 503}
	}
	return fetch.Response{URL: req.URL, StatusCode: 200, Body: body}, nil
}

// fakeStore records saved items and can fail on demand by book URL.
type fakeStore struct {
	saved   []book.Item
	failFor map[string]error
}

func (s *fakeStore) Init(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

func (s *fakeStore) SaveBook(_ context.Context, item *book.Item) error {
	if err, ok := s.failFor[item.BookURL]; ok {
		return err
	}
	s.saved = append(s.saved, *item)
	return nil
}

func newTestPipeline(t *testing.T, fetcher fetch.Fetcher, st *fakeStore) *Pipeline {
	t.Helper()
	d, err := images.NewDownloader(images.Config{Dir: t.TempDir()}, fetcher, zap.NewNop())
	require.NoError(t, err)
	return New(d, st, zap.NewNop())
}

func TestHandleItemRunsAllStages(t *testing.T) {
	t.Parallel()

	good := "https://img.faloo.com/covers/good.jpg"
	fetcher := &fakeFetcher{bodies: map[string][]byte{good: []byte("x")}}
	st := &fakeStore{}
	p := newTestPipeline(t, fetcher, st)

	item := &book.Item{
		Title:   "某书",
		BookURL: "https://b.faloo.com/1.html",
		ImageURLs: []string{
			"https://img.faloo.com/covers/bad1.jpg",
			good,
			"https://img.faloo.com/covers/bad2.jpg",
		},
	}
	p.HandleItem(context.Background(), item)

	// Partial image failure never fails the item.
	require.Len(t, st.saved, 1)
	assert.Len(t, st.saved[0].Images, 1)

	c := p.Snapshot()
	assert.Equal(t, 3, c.ImageURLs)
	assert.Equal(t, 1, c.ImagesSaved)
	assert.Equal(t, 2, c.ImagesFailed())
	assert.Equal(t, 1, c.ItemsSaved)
	assert.Zero(t, c.ItemsFailed)
}

func TestHandleItemIsolatesPersistFailures(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{bodies: map[string][]byte{}}
	st := &fakeStore{failFor: map[string]error{
		"https://b.faloo.com/broken.html": errors.New("constraint violation"),
	}}
	p := newTestPipeline(t, fetcher, st)

	broken := &book.Item{Title: "坏书", BookURL: "https://b.faloo.com/broken.html"}
	fine := &book.Item{Title: "好书", BookURL: "https://b.faloo.com/fine.html"}

	p.HandleItem(context.Background(), broken)
	p.HandleItem(context.Background(), fine)

	require.Len(t, st.saved, 1, "a failed item must not block later items")
	assert.Equal(t, "好书", st.saved[0].Title)

	c := p.Snapshot()
	assert.Equal(t, 1, c.ItemsSaved)
	assert.Equal(t, 1, c.ItemsFailed)
}

func TestRunIDIsStable(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, &fakeFetcher{}, &fakeStore{})
	assert.NotEmpty(t, p.RunID())
	assert.Equal(t, p.RunID(), p.RunID())
}
