// Package store persists downloaded price series so that repeated backtests
// over the same symbol and date range do not hit the network again.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rsrs/internal/domain"
)

var (
	// ErrCacheMiss is returned by BarCache.ReadBars when no cached series
	// exists for the key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrMissingColumn is returned when a price file lacks one of the
	// required OHLCV columns.
	ErrMissingColumn = errors.New("missing required column")
)

// RequiredColumns lists the columns every price file must carry besides its
// datetime index.
var RequiredColumns = []string{"open", "high", "low", "close", "volume"}

// CacheKey identifies one cached series.
type CacheKey struct {
	Source string
	Symbol string
	Start  time.Time
	End    time.Time
}

// FileStem returns the file name of the cached series without extension:
//
//	data_cache_<source>_<symbol>_<start>_<end>
func (k CacheKey) FileStem() string {
	return fmt.Sprintf("data_cache_%s_%s_%s_%s",
		k.Source,
		strings.ReplaceAll(k.Symbol, "/", "-"),
		k.Start.Format(time.DateOnly),
		k.End.Format(time.DateOnly),
	)
}

// String implements fmt.Stringer.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s[%s,%s]", k.Source, k.Symbol,
		k.Start.Format(time.DateOnly), k.End.Format(time.DateOnly))
}

// BarCache persists and retrieves whole bar series.
type BarCache interface {
	// ReadBars returns the cached series for key, or ErrCacheMiss.
	ReadBars(ctx context.Context, key CacheKey) ([]domain.Bar, error)

	// WriteBars replaces the cached series for key.
	WriteBars(ctx context.Context, key CacheKey, bars []domain.Bar) error

	// Path returns the file that backs key.
	Path(key CacheKey) string

	// Format names the on-disk format ("csv", "parquet").
	Format() string
}

// NewBarCache returns the BarCache for the named format rooted at dir.
func NewBarCache(format, dir string) (BarCache, error) {
	switch format {
	case "", "csv":
		return NewCSVStore(dir), nil
	case "parquet":
		return NewParquetStore(dir), nil
	default:
		return nil, fmt.Errorf("unknown cache format %q", format)
	}
}
