package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rsrs/internal/domain"
)

// Compile-time interface check.
var _ BarCache = (*CSVStore)(nil)

// CSVStore implements BarCache with one CSV file per series.
type CSVStore struct {
	DataDir string
}

// NewCSVStore creates a CSVStore rooted at the given data directory.
func NewCSVStore(dataDir string) *CSVStore {
	return &CSVStore{DataDir: dataDir}
}

// Format implements BarCache.
func (s *CSVStore) Format() string { return "csv" }

// Path implements BarCache.
func (s *CSVStore) Path(key CacheKey) string {
	return filepath.Join(s.DataDir, key.FileStem()+".csv")
}

// ReadBars implements BarCache.
func (s *CSVStore) ReadBars(_ context.Context, key CacheKey) ([]domain.Bar, error) {
	path := s.Path(key)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrCacheMiss)
		}
		return nil, err
	}
	defer f.Close()

	bars, err := ReadBarsCSV(f, key.Symbol)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return bars, nil
}

// WriteBars implements BarCache. The file is written to a temporary name and
// renamed so readers never observe a partial cache.
func (s *CSVStore) WriteBars(_ context.Context, key CacheKey, bars []domain.Bar) error {
	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteBarsCSV(f, bars); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ---------------------------------------------------------------------------
// CSV codec
// ---------------------------------------------------------------------------

// csvHeader is the column layout written by WriteBarsCSV.
var csvHeader = []string{"datetime", "open", "high", "low", "close", "volume"}

// datetimeLayouts are tried in order when parsing the index column.
var datetimeLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2006/01/02",
}

// WriteBarsCSV writes bars with the header datetime,open,high,low,close,volume.
// Timestamps at midnight UTC are written as plain dates.
func WriteBarsCSV(w io.Writer, bars []domain.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			formatTimestamp(b.Timestamp),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadBarsCSV parses an OHLCV CSV. Column names are matched case-insensitively
// and extra columns are ignored. The datetime index is the column named
// "datetime" or "date", or the first column when its header is empty.
func ReadBarsCSV(r io.Reader, symbol string) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: %w", ErrMissingColumn)
		}
		return nil, err
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	tsCol := -1
	for _, name := range []string{"datetime", "date", "timestamp"} {
		if i, ok := cols[name]; ok {
			tsCol = i
			break
		}
	}
	if tsCol < 0 && len(header) > 0 && strings.TrimSpace(header[0]) == "" {
		tsCol = 0
	}
	if tsCol < 0 {
		return nil, fmt.Errorf("datetime: %w", ErrMissingColumn)
	}
	idx := make([]int, len(RequiredColumns))
	for i, name := range RequiredColumns {
		c, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrMissingColumn)
		}
		idx[i] = c
	}

	var bars []domain.Bar
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		field := func(i int) string {
			if i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		ts, err := parseTimestamp(field(tsCol))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var v [5]float64
		for i, c := range idx {
			v[i], err = strconv.ParseFloat(field(c), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, RequiredColumns[i], err)
			}
		}
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      v[0],
			High:      v[1],
			Low:       v[2],
			Close:     v[3],
			Volume:    int64(v[4]),
		})
	}
	return bars, nil
}

func formatTimestamp(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised datetime %q", s)
}
