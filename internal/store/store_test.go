package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rsrs/internal/domain"
)

func testKey() CacheKey {
	return CacheKey{
		Source: "alpaca",
		Symbol: "SPY",
		Start:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func testBars() []domain.Bar {
	return []domain.Bar{
		{
			Symbol:    "SPY",
			Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:      472.16, High: 473.67, Low: 470.49, Close: 472.65,
			Volume: 123623700, TradeCount: 500000, VWAP: 472.2,
		},
		{
			Symbol:    "SPY",
			Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:      470.43, High: 471.19, Low: 468.17, Close: 468.79,
			Volume: 103585900, TradeCount: 450000, VWAP: 469.5,
		},
	}
}

func TestCacheKeyFileStem(t *testing.T) {
	got := testKey().FileStem()
	want := "data_cache_alpaca_SPY_2020-01-01_2025-01-31"
	if got != want {
		t.Errorf("FileStem() = %q, want %q", got, want)
	}

	k := testKey()
	k.Symbol = "BRK/B"
	if stem := k.FileStem(); strings.Contains(stem, "/") {
		t.Errorf("FileStem() = %q, must not contain a path separator", stem)
	}
}

func TestStorePaths(t *testing.T) {
	key := testKey()

	cp := NewCSVStore("/data").Path(key)
	if want := filepath.Join("/data", "data_cache_alpaca_SPY_2020-01-01_2025-01-31.csv"); cp != want {
		t.Errorf("CSVStore.Path mismatch:\n  got  %s\n  want %s", cp, want)
	}
	pp := NewParquetStore("/data").Path(key)
	if want := filepath.Join("/data", "data_cache_alpaca_SPY_2020-01-01_2025-01-31.parquet"); pp != want {
		t.Errorf("ParquetStore.Path mismatch:\n  got  %s\n  want %s", pp, want)
	}
}

func TestNewBarCache(t *testing.T) {
	for _, tt := range []struct{ format, want string }{
		{"", "csv"}, {"csv", "csv"}, {"parquet", "parquet"},
	} {
		c, err := NewBarCache(tt.format, t.TempDir())
		if err != nil {
			t.Fatalf("NewBarCache(%q): %v", tt.format, err)
		}
		if c.Format() != tt.want {
			t.Errorf("NewBarCache(%q).Format() = %q, want %q", tt.format, c.Format(), tt.want)
		}
	}
	if _, err := NewBarCache("json", t.TempDir()); err == nil {
		t.Error("NewBarCache(json) should fail")
	}
}

func checkRoundTrip(t *testing.T, got []domain.Bar, wantTradeCount bool) {
	t.Helper()
	want := testBars()
	if len(got) != len(want) {
		t.Fatalf("ReadBars returned %d bars, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if !g.Timestamp.Equal(w.Timestamp) {
			t.Errorf("bar %d Timestamp = %v, want %v", i, g.Timestamp, w.Timestamp)
		}
		if g.Symbol != w.Symbol {
			t.Errorf("bar %d Symbol = %q, want %q", i, g.Symbol, w.Symbol)
		}
		if g.Open != w.Open || g.High != w.High || g.Low != w.Low || g.Close != w.Close {
			t.Errorf("bar %d OHLC = %v/%v/%v/%v, want %v/%v/%v/%v",
				i, g.Open, g.High, g.Low, g.Close, w.Open, w.High, w.Low, w.Close)
		}
		if g.Volume != w.Volume {
			t.Errorf("bar %d Volume = %d, want %d", i, g.Volume, w.Volume)
		}
		if wantTradeCount && g.TradeCount != w.TradeCount {
			t.Errorf("bar %d TradeCount = %d, want %d", i, g.TradeCount, w.TradeCount)
		}
	}
}

func TestCSVStoreWriteReadBars(t *testing.T) {
	s := NewCSVStore(t.TempDir())
	ctx := context.Background()
	key := testKey()

	if _, err := s.ReadBars(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("ReadBars before write = %v, want ErrCacheMiss", err)
	}
	if err := s.WriteBars(ctx, key, testBars()); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	got, err := s.ReadBars(ctx, key)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	checkRoundTrip(t, got, false)
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()
	key := testKey()

	if _, err := s.ReadBars(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("ReadBars before write = %v, want ErrCacheMiss", err)
	}

	// Write out of order with a duplicate; the file must come back sorted
	// and deduplicated.
	bars := testBars()
	input := []domain.Bar{bars[1], bars[0], bars[1]}
	if err := s.WriteBars(ctx, key, input); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	got, err := s.ReadBars(ctx, key)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	checkRoundTrip(t, got, true)
}

func TestReadBarsCSVFormats(t *testing.T) {
	in := `Date,Open,High,Low,Close,Adj Close,Volume
2024-01-02,1.0,2.0,0.5,1.5,1.5,1000.0
2024-01-03 00:00:00,1.5,2.5,1.0,2.0,2.0,2000
2024-01-04T00:00:00Z,2.0,3.0,1.5,2.5,2.5,3000
`
	bars, err := ReadBarsCSV(strings.NewReader(in), "512800")
	if err != nil {
		t.Fatalf("ReadBarsCSV: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("ReadBarsCSV returned %d bars, want 3", len(bars))
	}
	for i, b := range bars {
		want := time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC)
		if !b.Timestamp.Equal(want) {
			t.Errorf("bar %d Timestamp = %v, want %v", i, b.Timestamp, want)
		}
		if b.Symbol != "512800" {
			t.Errorf("bar %d Symbol = %q, want %q", i, b.Symbol, "512800")
		}
	}
	if bars[0].Volume != 1000 {
		t.Errorf("bar 0 Volume = %d, want 1000", bars[0].Volume)
	}

	// A pandas index column has an empty header.
	unnamed := ",open,high,low,close,volume\n2024-01-02,1,2,0.5,1.5,10\n"
	if bars, err := ReadBarsCSV(strings.NewReader(unnamed), "X"); err != nil || len(bars) != 1 {
		t.Errorf("ReadBarsCSV(unnamed index) = %d bars, %v; want 1, nil", len(bars), err)
	}
}

func TestReadBarsCSVMissingColumn(t *testing.T) {
	tests := map[string]string{
		"no volume":   "datetime,open,high,low,close\n2024-01-02,1,2,0.5,1.5\n",
		"no datetime": "day,open,high,low,close,volume\n2024-01-02,1,2,0.5,1.5,10\n",
		"empty":       "",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadBarsCSV(strings.NewReader(in), "X")
			if !errors.Is(err, ErrMissingColumn) {
				t.Errorf("ReadBarsCSV() = %v, want ErrMissingColumn", err)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	cat, err := NewCatalog(dbPath)
	if err != nil {
		t.Fatalf("NewCatalog(%q) returned error: %v", dbPath, err)
	}
	defer func() {
		if cerr := cat.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()
	ctx := context.Background()
	key := testKey()

	if _, err := cat.Lookup(ctx, key, "csv"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Lookup on empty catalog = %v, want ErrCacheMiss", err)
	}

	bars := testBars()
	entry := CacheEntry{
		Key:       key,
		Path:      "/data/x.csv",
		Format:    "csv",
		Rows:      len(bars),
		FirstBar:  bars[0].Timestamp,
		LastBar:   bars[1].Timestamp,
		FetchedAt: time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := cat.Record(ctx, entry); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// Recording again replaces the row.
	entry.Rows = 3
	if err := cat.Record(ctx, entry); err != nil {
		t.Fatalf("Record (replace): %v", err)
	}

	got, err := cat.Lookup(ctx, key, "csv")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Rows != 3 || got.Path != entry.Path {
		t.Errorf("Lookup = %+v, want rows 3 path %s", got, entry.Path)
	}
	if !got.Key.Start.Equal(key.Start) || !got.LastBar.Equal(entry.LastBar) {
		t.Errorf("Lookup times = %v/%v, want %v/%v", got.Key.Start, got.LastBar, key.Start, entry.LastBar)
	}

	other := key
	other.Symbol = "QQQ"
	if err := cat.Record(ctx, CacheEntry{Key: other, Path: "/data/q.parquet", Format: "parquet"}); err != nil {
		t.Fatalf("Record (other): %v", err)
	}
	list, err := cat.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(list))
	}
	if list[0].Key.Symbol != "QQQ" || list[1].Key.Symbol != "SPY" {
		t.Errorf("List order = %s, %s, want QQQ, SPY", list[0].Key.Symbol, list[1].Key.Symbol)
	}
}
