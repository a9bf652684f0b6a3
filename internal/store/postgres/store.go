// Package postgres implements the store contract on a networked Postgres
// server. Semantics mirror the sqlite backend exactly.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/yunqi-data/bookharvest/internal/book"
	"github.com/yunqi-data/bookharvest/internal/store"
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock implements it
// for tests.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Store provides Postgres-backed persistence.
type Store struct {
	pool   pool
	logger *zap.Logger
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: p, logger: logger}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(p pool, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p, logger: logger}, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT,
		monthly_clicks TEXT,
		word_count TEXT,
		summary TEXT,
		book_url TEXT UNIQUE,
		flowers TEXT,
		rating TEXT,
		rewards TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id BIGSERIAL PRIMARY KEY,
		name TEXT UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS book_tags (
		book_id BIGINT REFERENCES books (id) ON DELETE CASCADE,
		tag_id BIGINT REFERENCES tags (id) ON DELETE CASCADE,
		PRIMARY KEY (book_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS images (
		id BIGSERIAL PRIMARY KEY,
		book_id BIGINT REFERENCES books (id) ON DELETE CASCADE,
		image_url TEXT,
		image_path TEXT
	)`,
}

// Init creates the four tables if absent.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init postgres schema: %w", err)
		}
	}
	s.logger.Info("postgres schema ready")
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// SaveBook commits one item in a single transaction, in the same order as
// the sqlite backend: books upsert, tags, book_tags, images.
func (s *Store) SaveBook(ctx context.Context, item *book.Item) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

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

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit item %s: %w", item.BookURL, err)
	}
	return nil
}

func upsertBook(ctx context.Context, tx pgx.Tx, item *book.Item) (int64, error) {
	const query = `
INSERT INTO books (title, author, monthly_clicks, word_count, summary, book_url, flowers, rating, rewards)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (book_url) DO UPDATE SET
    title = EXCLUDED.title,
    author = EXCLUDED.author,
    monthly_clicks = EXCLUDED.monthly_clicks,
    word_count = EXCLUDED.word_count,
    summary = EXCLUDED.summary,
    flowers = EXCLUDED.flowers,
    rating = EXCLUDED.rating,
    rewards = EXCLUDED.rewards
RETURNING id`

	var bookID int64
	err := tx.QueryRow(ctx, query,
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

func saveTags(ctx context.Context, tx pgx.Tx, bookID int64, tags []string) error {
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}

		if _, err := tx.Exec(ctx,
			`INSERT INTO tags (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, tag); err != nil {
			return fmt.Errorf("insert tag %q: %w", tag, err)
		}
		var tagID int64
		if err := tx.QueryRow(ctx,
			`SELECT id FROM tags WHERE name = $1`, tag).Scan(&tagID); err != nil {
			return fmt.Errorf("resolve tag %q: %w", tag, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO book_tags (book_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			bookID, tagID); err != nil {
			return fmt.Errorf("associate tag %q: %w", tag, err)
		}
	}
	return nil
}

// saveImages appends one row per downloaded image; no dedup key on purpose,
// matching the append-only contract of the images table.
func saveImages(ctx context.Context, tx pgx.Tx, bookID int64, imgs []book.Image) error {
	for _, img := range imgs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO images (book_id, image_url, image_path) VALUES ($1, $2, $3)`,
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
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
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
GROUP BY t.id, t.name
ORDER BY books DESC, t.name
LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top tags: %w", err)
	}
	return out, nil
}
