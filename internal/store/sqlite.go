package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// CacheEntry describes one cached series recorded in the catalog.
type CacheEntry struct {
	Key       CacheKey
	Path      string
	Format    string
	Rows      int
	FirstBar  time.Time
	LastBar   time.Time
	FetchedAt time.Time
}

// Catalog indexes cached series in a SQLite database so cache contents can be
// listed without scanning the data directory.
type Catalog struct {
	db *sql.DB
}

const catalogSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	source     TEXT    NOT NULL,
	symbol     TEXT    NOT NULL,
	start_date TEXT    NOT NULL,
	end_date   TEXT    NOT NULL,
	path       TEXT    NOT NULL,
	format     TEXT    NOT NULL,
	rows       INTEGER NOT NULL,
	first_bar  INTEGER NOT NULL,
	last_bar   INTEGER NOT NULL,
	fetched_at INTEGER NOT NULL,
	PRIMARY KEY (source, symbol, start_date, end_date, format)
)`

// NewCatalog opens (or creates) a SQLite database at dbPath and ensures the
// cache_entries table exists.
func NewCatalog(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache_entries: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record inserts or replaces the entry for e.Key and e.Format.
func (c *Catalog) Record(ctx context.Context, e CacheEntry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_entries
			(source, symbol, start_date, end_date, path, format, rows, first_bar, last_bar, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Key.Source, e.Key.Symbol,
		e.Key.Start.Format(time.DateOnly), e.Key.End.Format(time.DateOnly),
		e.Path, e.Format, e.Rows,
		e.FirstBar.UnixMilli(), e.LastBar.UnixMilli(), e.FetchedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", e.Key, err)
	}
	return nil
}

// Lookup returns the entry for key in the given format, or ErrCacheMiss.
func (c *Catalog) Lookup(ctx context.Context, key CacheKey, format string) (CacheEntry, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT source, symbol, start_date, end_date, path, format, rows, first_bar, last_bar, fetched_at
		FROM cache_entries
		WHERE source = ? AND symbol = ? AND start_date = ? AND end_date = ? AND format = ?`,
		key.Source, key.Symbol,
		key.Start.Format(time.DateOnly), key.End.Format(time.DateOnly), format,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, fmt.Errorf("%s: %w", key, ErrCacheMiss)
	}
	return e, err
}

// List returns every entry ordered by symbol and start date.
func (c *Catalog) List(ctx context.Context) ([]CacheEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT source, symbol, start_date, end_date, path, format, rows, first_bar, last_bar, fetched_at
		FROM cache_entries
		ORDER BY symbol, start_date, source, format`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (CacheEntry, error) {
	var (
		e                    CacheEntry
		start, end           string
		first, last, fetched int64
	)
	if err := s.Scan(&e.Key.Source, &e.Key.Symbol, &start, &end,
		&e.Path, &e.Format, &e.Rows, &first, &last, &fetched); err != nil {
		return CacheEntry{}, err
	}
	var err error
	if e.Key.Start, err = time.Parse(time.DateOnly, start); err != nil {
		return CacheEntry{}, fmt.Errorf("parsing start_date %q: %w", start, err)
	}
	if e.Key.End, err = time.Parse(time.DateOnly, end); err != nil {
		return CacheEntry{}, fmt.Errorf("parsing end_date %q: %w", end, err)
	}
	e.FirstBar = time.UnixMilli(first).UTC()
	e.LastBar = time.UnixMilli(last).UTC()
	e.FetchedAt = time.UnixMilli(fetched).UTC()
	return e, nil
}
