package datasource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"rsrs/internal/domain"
	"rsrs/internal/store"
)

var (
	testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
)

// stubSource returns a fixed series and counts calls.
type stubSource struct {
	bars  []domain.Bar
	err   error
	calls int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(_ context.Context, _ string, _, _ time.Time) ([]domain.Bar, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return copyBars(s.bars), nil
}

func dailyBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = domain.Bar{
			Symbol:    "SPY",
			Timestamp: testStart.AddDate(0, 0, i+1),
			Open:      p, High: p + 1, Low: p - 1, Close: p + 0.5,
			Volume: int64(1000 * (i + 1)),
		}
	}
	return bars
}

func TestLoaderCachesAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := &stubSource{bars: dailyBars(10)}
	cat, err := store.NewCatalog(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	defer cat.Close()

	l := NewLoader(src, store.NewCSVStore(dir), cat)
	ctx := context.Background()

	first, err := l.Load(ctx, "SPY", testStart, testEnd)
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "data_cache_stub_SPY_2024-01-01_2024-01-31.csv")); err != nil {
		t.Fatalf("cache file not written: %v", err)
	}

	// Mutating the returned slice must not leak into later loads.
	first[0].Close = -1

	second, err := l.Load(ctx, "SPY", testStart, testEnd)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("source fetched %d times, want 1", src.calls)
	}
	if len(second) != 10 {
		t.Fatalf("second Load returned %d bars, want 10", len(second))
	}
	if second[0].Close != 100.5 {
		t.Errorf("second[0].Close = %v, want 100.5", second[0].Close)
	}

	entry, err := cat.Lookup(ctx, l.Key("SPY", testStart, testEnd), "csv")
	if err != nil {
		t.Fatalf("catalog Lookup: %v", err)
	}
	if entry.Rows != 10 {
		t.Errorf("catalog Rows = %d, want 10", entry.Rows)
	}
	if !entry.LastBar.Equal(second[9].Timestamp) {
		t.Errorf("catalog LastBar = %v, want %v", entry.LastBar, second[9].Timestamp)
	}
}

func TestLoaderWithoutCache(t *testing.T) {
	src := &stubSource{bars: dailyBars(3)}
	l := NewLoader(src, nil, nil)
	for i := 0; i < 2; i++ {
		if _, err := l.Load(context.Background(), "SPY", testStart, testEnd); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}
	if src.calls != 2 {
		t.Errorf("source fetched %d times, want 2 without a cache", src.calls)
	}
}

func TestLoaderErrors(t *testing.T) {
	ctx := context.Background()

	empty := NewLoader(&stubSource{}, store.NewCSVStore(t.TempDir()), nil)
	if _, err := empty.Load(ctx, "SPY", testStart, testEnd); !errors.Is(err, ErrNoBars) {
		t.Errorf("Load(empty) = %v, want ErrNoBars", err)
	}

	bars := dailyBars(3)
	bars[1], bars[2] = bars[2], bars[1]
	unordered := NewLoader(&stubSource{bars: bars}, nil, nil)
	if _, err := unordered.Load(ctx, "SPY", testStart, testEnd); !errors.Is(err, domain.ErrUnorderedBars) {
		t.Errorf("Load(unordered) = %v, want ErrUnorderedBars", err)
	}

	boom := errors.New("boom")
	failing := NewLoader(&stubSource{err: boom}, nil, nil)
	if _, err := failing.Load(ctx, "SPY", testStart, testEnd); !errors.Is(err, boom) {
		t.Errorf("Load(failing) = %v, want wrapped source error", err)
	}
}

func TestCSVFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	content := "datetime,open,high,low,close,volume\n" +
		"2023-12-29,1,2,0.5,1.5,10\n" +
		"2024-01-02,1,2,0.5,1.5,10\n" +
		"2024-01-31,1,2,0.5,1.5,10\n" +
		"2024-02-01,1,2,0.5,1.5,10\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	bars, err := NewCSVFileSource(path).Fetch(context.Background(), "512800", testStart, testEnd)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("Fetch returned %d bars, want 2 inside the range", len(bars))
	}
	if bars[1].Timestamp.Day() != 31 {
		t.Errorf("last bar = %v, want 2024-01-31 (end is inclusive)", bars[1].Timestamp)
	}

	missing := filepath.Join(t.TempDir(), "nocols.csv")
	os.WriteFile(missing, []byte("datetime,open,close\n2024-01-02,1,2\n"), 0o644)
	if _, err := NewCSVFileSource(missing).Fetch(context.Background(), "X", testStart, testEnd); !errors.Is(err, store.ErrMissingColumn) {
		t.Errorf("Fetch(missing columns) = %v, want ErrMissingColumn", err)
	}
}

// fakeBarsClient fails a fixed number of times before answering.
type fakeBarsClient struct {
	failures int
	calls    int
	req      marketdata.GetBarsRequest
	bars     []marketdata.Bar
}

func (f *fakeBarsClient) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.calls++
	f.req = req
	if f.calls <= f.failures {
		return nil, errors.New("503 service unavailable")
	}
	return f.bars, nil
}

func TestAlpacaSourceFetch(t *testing.T) {
	ny := time.FixedZone("EST", -5*3600)
	client := &fakeBarsClient{
		failures: 1,
		bars: []marketdata.Bar{
			{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, ny), Open: 472, High: 474, Low: 470, Close: 473, Volume: 1000, TradeCount: 10, VWAP: 472.5},
			{Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, ny), Open: 470, High: 471, Low: 468, Close: 469, Volume: 2000, TradeCount: 20, VWAP: 469.5},
		},
	}
	src := newAlpacaSource(client, AlpacaOptions{
		Adjustment:      "split",
		RateLimitPerMin: 600000,
		MaxAttempts:     3,
		RetryDelay:      time.Millisecond,
	})

	bars, err := src.Fetch(context.Background(), "SPY", testStart, testEnd)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("GetBars called %d times, want 2 (one retry)", client.calls)
	}
	if client.req.TimeFrame != marketdata.OneDay {
		t.Errorf("TimeFrame = %v, want OneDay", client.req.TimeFrame)
	}
	if string(client.req.Adjustment) != "split" {
		t.Errorf("Adjustment = %q, want %q", client.req.Adjustment, "split")
	}
	if len(bars) != 2 {
		t.Fatalf("Fetch returned %d bars, want 2", len(bars))
	}
	if got := bars[0].Timestamp; !got.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("bars[0].Timestamp = %v, want 2024-01-02 UTC", got)
	}
	if bars[1].Volume != 2000 || bars[1].TradeCount != 20 || bars[1].Symbol != "SPY" {
		t.Errorf("bars[1] = %+v, want volume 2000 trades 20 symbol SPY", bars[1])
	}
}

func TestAlpacaSourceGivesUp(t *testing.T) {
	client := &fakeBarsClient{failures: 10}
	src := newAlpacaSource(client, AlpacaOptions{
		RateLimitPerMin: 600000,
		MaxAttempts:     2,
		RetryDelay:      time.Millisecond,
	})
	if _, err := src.Fetch(context.Background(), "SPY", testStart, testEnd); err == nil {
		t.Fatal("Fetch should fail once attempts are exhausted")
	}
	if client.calls != 2 {
		t.Errorf("GetBars called %d times, want 2", client.calls)
	}
}
