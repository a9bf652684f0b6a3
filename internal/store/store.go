// Package store defines the persistence contract shared by the embedded
// SQLite backend and the networked Postgres backend. Both implementations
// must exhibit identical externally observable semantics: idempotent schema
// creation, upsert-by-book_url, lazily shared tags, idempotent book/tag
// associations, append-only image rows, and one transaction per item.
package store

import (
	"context"

	"github.com/yunqi-data/bookharvest/internal/book"
)

// Store persists completed items.
type Store interface {
	// Init creates the schema if absent. Idempotent; called once at open,
	// before any item is processed. A failure here is fatal to the run.
	Init(ctx context.Context) error

	// SaveBook commits one item atomically in fixed order: upsert the books
	// row keyed on book_url, resolve tags, associate book_tags, then append
	// images rows. Any mid-item failure rolls the whole item back.
	SaveBook(ctx context.Context, item *book.Item) error

	// Close releases the connection. Called once at crawl end.
	Close() error
}

// TagCount is one row of the tag popularity aggregation.
type TagCount struct {
	Name  string
	Books int
}

// Reader is the read-only aggregation surface consumed by the report
// command. No writes happen outside Store.
type Reader interface {
	CountBooks(ctx context.Context) (int, error)
	CountTags(ctx context.Context) (int, error)
	CountImages(ctx context.Context) (int, error)
	TopTags(ctx context.Context, limit int) ([]TagCount, error)
}
