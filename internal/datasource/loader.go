package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rsrs/internal/domain"
	"rsrs/internal/store"
)

// Loader fronts a Source with a BarCache and an optional Catalog. Loads are
// idempotent: the first call for a key fetches and writes the cache, later
// calls read it back.
type Loader struct {
	source  Source
	cache   store.BarCache // nil disables caching
	catalog *store.Catalog // nil disables cataloguing

	mu  sync.Mutex
	now func() time.Time
	log *slog.Logger
}

// NewLoader creates a Loader. cache and catalog may be nil.
func NewLoader(source Source, cache store.BarCache, catalog *store.Catalog) *Loader {
	return &Loader{
		source:  source,
		cache:   cache,
		catalog: catalog,
		now:     time.Now,
		log:     slog.Default().With("loader", source.Name()),
	}
}

// Key returns the cache key used for symbol over [start, end].
func (l *Loader) Key(symbol string, start, end time.Time) store.CacheKey {
	return store.CacheKey{Source: l.source.Name(), Symbol: symbol, Start: start, End: end}
}

// Load returns the daily bars of symbol over [start, end]. The returned slice
// is owned by the caller.
func (l *Loader) Load(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := l.Key(symbol, start, end)

	if l.cache != nil {
		bars, err := l.cache.ReadBars(ctx, key)
		switch {
		case err == nil:
			if err := domain.ValidateBars(bars); err != nil {
				return nil, fmt.Errorf("cached %s: %w", key, err)
			}
			l.log.Info("cache hit", "path", l.cache.Path(key), "bars", len(bars))
			return copyBars(bars), nil
		case !errors.Is(err, store.ErrCacheMiss):
			return nil, fmt.Errorf("reading cache %s: %w", key, err)
		}
	}

	l.log.Info("fetching bars", "symbol", symbol,
		"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))
	bars, err := l.source.Fetch(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", key, ErrNoBars)
	}
	if err := domain.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("fetched %s: %w", key, err)
	}

	if l.cache != nil {
		if err := l.cache.WriteBars(ctx, key, bars); err != nil {
			return nil, fmt.Errorf("writing cache %s: %w", key, err)
		}
		l.log.Info("cache written", "path", l.cache.Path(key), "bars", len(bars))

		if l.catalog != nil {
			entry := store.CacheEntry{
				Key:       key,
				Path:      l.cache.Path(key),
				Format:    l.cache.Format(),
				Rows:      len(bars),
				FirstBar:  bars[0].Timestamp,
				LastBar:   bars[len(bars)-1].Timestamp,
				FetchedAt: l.now().UTC(),
			}
			if err := l.catalog.Record(ctx, entry); err != nil {
				return nil, err
			}
		}
	}
	return copyBars(bars), nil
}

func copyBars(bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, len(bars))
	copy(out, bars)
	return out
}

// Closes extracts the close prices of bars.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
