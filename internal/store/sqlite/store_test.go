package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yunqi-data/bookharvest/internal/book"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Init(context.Background()))
	return s
}

func sampleItem() *book.Item {
	return &book.Item{
		Title:         "剑骨",
		Author:        "青竹客",
		MonthlyClicks: "12.5万",
		WordCount:     "320万",
		Summary:       "少年背起铁剑。",
		BookURL:       "https://b.faloo.com/1390477.html",
		Flowers:       "1024",
		Rating:        "9.2分",
		Rewards:       "56万",
		Tags:          []string{"玄幻", "争霸"},
		Images: []book.Image{
			{SourceURL: "https://img.faloo.com/covers/1390477.jpg", LocalPath: "full/1390477.jpg"},
		},
	}
}

func TestInitIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.Init(context.Background()))
}

func TestSaveBookUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	item := sampleItem()
	require.NoError(t, s.SaveBook(ctx, item))

	// Second sight of the same book_url updates in place.
	item.Rating = "9.5分"
	item.MonthlyClicks = "13万"
	require.NoError(t, s.SaveBook(ctx, item))

	books, err := s.CountBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, books)

	var rating, clicks string
	require.NoError(t, s.db.QueryRow(
		`SELECT rating, monthly_clicks FROM books WHERE book_url = ?`, item.BookURL,
	).Scan(&rating, &clicks))
	assert.Equal(t, "9.5分", rating, "the second persist's values must win")
	assert.Equal(t, "13万", clicks)

	tags, err := s.CountTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, tags, "unchanged tags must not grow on re-persist")

	var assoc int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM book_tags`).Scan(&assoc))
	assert.Equal(t, 2, assoc)
}

func TestTagsSharedAcrossBooks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	first := sampleItem()
	require.NoError(t, s.SaveBook(ctx, first))

	second := sampleItem()
	second.BookURL = "https://b.faloo.com/999.html"
	second.Title = "另一本"
	second.Tags = []string{"玄幻"}
	second.Images = nil
	require.NoError(t, s.SaveBook(ctx, second))

	var tagRows int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM tags WHERE name = ?`, "玄幻").Scan(&tagRows))
	assert.Equal(t, 1, tagRows, "a shared tag name keeps a single tags row")

	var assoc int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM book_tags bt JOIN tags t ON t.id = bt.tag_id WHERE t.name = ?`,
		"玄幻").Scan(&assoc))
	assert.Equal(t, 2, assoc, "each book keeps its own association row")
}

func TestDuplicateTagsWithinItemCollapse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	item := sampleItem()
	item.Tags = []string{"玄幻", "玄幻", ""}
	require.NoError(t, s.SaveBook(ctx, item))

	var assoc int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM book_tags`).Scan(&assoc))
	assert.Equal(t, 1, assoc)
}

func TestImageRowsAreAppendOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	item := sampleItem()
	require.NoError(t, s.SaveBook(ctx, item))
	require.NoError(t, s.SaveBook(ctx, item))

	images, err := s.CountImages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, images, "images rows accumulate per crawl attempt")
}

func TestSaveBookRollsBackWholeItem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	// Sabotage the last statement of the item transaction.
	_, err := s.db.Exec(`DROP TABLE images`)
	require.NoError(t, err)

	item := sampleItem()
	require.Error(t, s.SaveBook(ctx, item))

	books, err := s.CountBooks(ctx)
	require.NoError(t, err)
	assert.Zero(t, books, "no partial book state may survive a failed item")

	tags, err := s.CountTags(ctx)
	require.NoError(t, err)
	assert.Zero(t, tags)

	var assoc int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM book_tags`).Scan(&assoc))
	assert.Zero(t, assoc)
}

func TestTopTags(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	first := sampleItem()
	require.NoError(t, s.SaveBook(ctx, first))

	second := sampleItem()
	second.BookURL = "https://b.faloo.com/999.html"
	second.Tags = []string{"玄幻"}
	second.Images = nil
	require.NoError(t, s.SaveBook(ctx, second))

	top, err := s.TopTags(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, top)
	assert.Equal(t, "玄幻", top[0].Name)
	assert.Equal(t, 2, top[0].Books)
}
