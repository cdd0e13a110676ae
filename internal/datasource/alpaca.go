package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"rsrs/internal/domain"
	"rsrs/internal/util"
)

// Compile-time interface check.
var _ Source = (*AlpacaSource)(nil)

// barsClient is the subset of *marketdata.Client used by AlpacaSource.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaOptions configures AlpacaSource.
type AlpacaOptions struct {
	APIKey          string
	APISecret       string
	DataURL         string
	Feed            string // "sip" or "iex"
	Adjustment      string // "raw", "split", "dividend" or "all"
	RateLimitPerMin int
	MaxAttempts     int
	RetryDelay      time.Duration
}

// AlpacaSource fetches daily bars from the Alpaca market-data API.
type AlpacaSource struct {
	client      barsClient
	feed        string
	adjustment  string
	limiter     *util.RateLimiter
	maxAttempts int
	retryDelay  time.Duration
	log         *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource from the given options.
func NewAlpacaSource(opts AlpacaOptions) *AlpacaSource {
	clientOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		clientOpts.BaseURL = opts.DataURL
	}
	return newAlpacaSource(marketdata.NewClient(clientOpts), opts)
}

func newAlpacaSource(client barsClient, opts AlpacaOptions) *AlpacaSource {
	if opts.Feed == "" {
		opts.Feed = "sip"
	}
	if opts.Adjustment == "" {
		opts.Adjustment = "all"
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 200
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &AlpacaSource{
		client:      client,
		feed:        opts.Feed,
		adjustment:  opts.Adjustment,
		limiter:     util.NewRateLimiter(opts.RateLimitPerMin),
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		log:         slog.Default().With("source", "alpaca"),
	}
}

// Name returns the source identifier.
func (s *AlpacaSource) Name() string { return "alpaca" }

// Fetch implements Source.
func (s *AlpacaSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	req := marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      start,
		End:        end.AddDate(0, 0, 1),
		Adjustment: marketdata.Adjustment(s.adjustment),
		Feed:       marketdata.Feed(s.feed),
	}

	var raw []marketdata.Bar
	err := util.Retry(ctx, s.maxAttempts, s.retryDelay, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		bars, err := s.client.GetBars(symbol, req)
		if err != nil {
			s.log.Warn("GetBars failed", "symbol", symbol, "error", err)
			return err
		}
		raw = bars
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		ts := ab.Timestamp.UTC()
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		if !inRange(day, start, end) {
			continue
		}
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  day,
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	s.log.Debug("fetched bars", "symbol", symbol, "bars", len(bars))
	return bars, nil
}
