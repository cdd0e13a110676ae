// Package datasource loads daily OHLCV series from a price source, caching
// them on disk so later runs over the same range read the file instead.
package datasource

import (
	"context"
	"errors"
	"time"

	"rsrs/internal/domain"
)

// ErrNoBars is returned when a source has no bars for the requested range.
var ErrNoBars = errors.New("no bars returned")

// Source fetches daily bars for one symbol.
type Source interface {
	// Name identifies the source in cache keys and log records.
	Name() string

	// Fetch returns the daily bars in [start, end], both dates inclusive,
	// in time order.
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// inRange reports whether ts falls on a date in [start, end].
func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && ts.Before(end.AddDate(0, 0, 1))
}
