package datasource

import (
	"context"
	"fmt"
	"os"
	"time"

	"rsrs/internal/domain"
	"rsrs/internal/store"
)

// Compile-time interface check.
var _ Source = (*CSVFileSource)(nil)

// CSVFileSource reads bars from a local OHLCV CSV file, such as a previously
// exported cache.
type CSVFileSource struct {
	path string
}

// NewCSVFileSource creates a CSVFileSource reading path.
func NewCSVFileSource(path string) *CSVFileSource {
	return &CSVFileSource{path: path}
}

// Name returns the source identifier.
func (s *CSVFileSource) Name() string { return "csv" }

// Fetch implements Source. Rows outside [start, end] are dropped.
func (s *CSVFileSource) Fetch(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all, err := store.ReadBarsCSV(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	bars := all[:0]
	for _, b := range all {
		if inRange(b.Timestamp, start, end) {
			bars = append(bars, b)
		}
	}
	return bars, nil
}
