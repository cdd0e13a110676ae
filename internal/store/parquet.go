package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/parquet-go/parquet-go"

	"rsrs/internal/domain"
)

var _ BarCache = (*ParquetStore)(nil)

// ParquetStore caches each series in its own zstd-compressed Parquet file.
// The symbol lives in the file name, so rows carry only the date and prices.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at dataDir.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// BarRecord is one row of a cached series.
type BarRecord struct {
	Date       string  `parquet:"date"` // YYYY-MM-DD
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// Format implements BarCache.
func (s *ParquetStore) Format() string { return "parquet" }

// Path implements BarCache.
func (s *ParquetStore) Path(key CacheKey) string {
	return filepath.Join(s.DataDir, key.FileStem()+".parquet")
}

// WriteBars implements BarCache. Rows are written in date order, keeping
// the last bar seen for any repeated date.
func (s *ParquetStore) WriteBars(_ context.Context, key CacheKey, bars []domain.Bar) error {
	byDate := make(map[string]BarRecord, len(bars))
	for _, b := range bars {
		d := b.Timestamp.UTC().Format(time.DateOnly)
		byDate[d] = BarRecord{
			Date: d, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
			Volume: b.Volume, TradeCount: b.TradeCount, VWAP: b.VWAP,
		}
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	slices.Sort(dates)
	records := make([]BarRecord, len(dates))
	for i, d := range dates {
		records[i] = byDate[d]
	}

	if err := writeRecords(s.Path(key), records); err != nil {
		return fmt.Errorf("writing bars for %s: %w", key, err)
	}
	return nil
}

// ReadBars implements BarCache.
func (s *ParquetStore) ReadBars(_ context.Context, key CacheKey) ([]domain.Bar, error) {
	path := s.Path(key)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrCacheMiss)
	}

	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	bars := make([]domain.Bar, 0, len(records))
	for i, r := range records {
		ts, err := time.Parse(time.DateOnly, r.Date)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i, err)
		}
		bars = append(bars, domain.Bar{
			Symbol: key.Symbol, Timestamp: ts,
			Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
			Volume: r.Volume, TradeCount: r.TradeCount, VWAP: r.VWAP,
		})
	}
	return bars, nil
}

// writeRecords writes to a temporary file in the target directory and
// renames it into place, so readers never see a partial file.
func writeRecords(path string, records []BarRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".bars-*.parquet")
	if err != nil {
		return err
	}
	tmp := f.Name()

	w := parquet.NewGenericWriter[BarRecord](f, parquet.Compression(&parquet.Zstd))
	if _, err := w.Write(records); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
