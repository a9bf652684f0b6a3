// Package sqlite implements the store contract on an embedded single-file
// database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/yunqi-data/bookharvest/internal/book"
	"github.com/yunqi-data/bookharvest/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Store provides SQLite-backed persistence.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and configures pragmas.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// Single writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	return &Store{db: db, logger: logger}, nil
}

// Init creates the four tables if absent.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	s.logger.Info("sqlite schema ready")
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBook commits one item in a single transaction: books upsert, tag
// resolution, book_tags association, then images rows.
func (s *Store) SaveBook(ctx context.Context, item *book.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	bookID, err := upsertBook(ctx, tx, item)
	if err != nil {
		return err
	}
	if err := saveTags(ctx, tx, bookID, item.Tags); err != nil {
		return err
	}
	if err := saveImages(ctx, tx, bookID, item.Images); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit item %s: %w", item.BookURL, err)
	}
	return nil
}

// upsertBook inserts the books row keyed on book_url, updating every other
// column in place when the row already exists, and returns its id either
// way.
func upsertBook(ctx context.Context, tx *sql.Tx, item *book.Item) (int64, error) {
	const query = `
INSERT INTO books (title, author, monthly_clicks, word_count, summary, book_url, flowers, rating, rewards)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (book_url) DO UPDATE SET
    title = excluded.title,
    author = excluded.author,
    monthly_clicks = excluded.monthly_clicks,
    word_count = excluded.word_count,
    summary = excluded.summary,
    flowers = excluded.flowers,
    rating = excluded.rating,
    rewards = excluded.rewards
RETURNING id`

	var bookID int64
	err := tx.QueryRowContext(ctx, query,
		item.Title,
		item.Author,
		item.MonthlyClicks,
		item.WordCount,
		item.Summary,
		item.BookURL,
		item.Flowers,
		item.Rating,
		item.Rewards,
	).Scan(&bookID)
	if err != nil {
		return 0, fmt.Errorf("upsert book %s: %w", item.BookURL, err)
	}
	return bookID, nil
}

// saveTags creates missing tags and associates them with the book. Every
// step is idempotent; duplicate tag names within one item collapse to a
// single association.
func saveTags(ctx context.Context, tx *sql.Tx, bookID int64, tags []string) error {
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, tag); err != nil {
			return fmt.Errorf("insert tag %q: %w", tag, err)
		}
		var tagID int64
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM tags WHERE name = ?`, tag).Scan(&tagID); err != nil {
			return fmt.Errorf("resolve tag %q: %w", tag, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO book_tags (book_id, tag_id) VALUES (?, ?)`, bookID, tagID); err != nil {
			return fmt.Errorf("associate tag %q: %w", tag, err)
		}
	}
	return nil
}

// saveImages appends one row per downloaded image. There is deliberately no
// dedup key here: re-processing the same item adds fresh rows per crawl
// attempt, matching the append-only contract of the images table.
func saveImages(ctx context.Context, tx *sql.Tx, bookID int64, imgs []book.Image) error {
	for _, img := range imgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO images (book_id, image_url, image_path) VALUES (?, ?, ?)`,
			bookID, img.SourceURL, img.LocalPath); err != nil {
			return fmt.Errorf("insert image %s: %w", img.SourceURL, err)
		}
	}
	return nil
}

// CountBooks returns the number of books rows.
func (s *Store) CountBooks(ctx context.Context) (int, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM books`)
}

// CountTags returns the number of tags rows.
func (s *Store) CountTags(ctx context.Context) (int, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM tags`)
}

// CountImages returns the number of images rows.
func (s *Store) CountImages(ctx context.Context) (int, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM images`)
}

func (s *Store) countRows(ctx context.Context, query string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// TopTags returns the most associated tags, busiest first.
func (s *Store) TopTags(ctx context.Context, limit int) ([]store.TagCount, error) {
	const query = `
SELECT t.name, COUNT(bt.book_id) AS books
FROM tags t
JOIN book_tags bt ON bt.tag_id = t.id
GROUP BY t.id
ORDER BY books DESC, t.name
LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query top tags: %w", err)
	}
	defer rows.Close()

	var out []store.TagCount
	for rows.Next() {
		var tc store.TagCount
		if err := rows.Scan(&tc.Name, &tc.Books); err != nil {
			return nil, fmt.Errorf("scan top tags: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("iterate top tags: %w", err)
	}
	return out, nil
}
