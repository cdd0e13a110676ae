package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"rsrs/internal/analysis"
	"rsrs/internal/broker"
	"rsrs/internal/domain"
	"rsrs/internal/engine"
	"rsrs/internal/indicator"
)

// FillPolicy selects the price at which accepted orders execute.
type FillPolicy string

const (
	// FillOnClose fills orders at the close of the bar they were submitted on.
	FillOnClose FillPolicy = "close"
	// FillOnNextOpen fills orders at the open of the following bar.
	FillOnNextOpen FillPolicy = "next_open"
)

// Options configures the simulated account of every run.
type Options struct {
	InitialCash    float64
	Commission     float64
	FillOn         FillPolicy
	LotSize        int64
	MaxPositionPct float64
	MaxWorkers     int
}

// DefaultOptions returns the default account settings.
func DefaultOptions() Options {
	return Options{
		InitialCash:    100000,
		FillOn:         FillOnClose,
		LotSize:        1,
		MaxPositionPct: 1.0,
		MaxWorkers:     1,
	}
}

// BacktestResult holds everything one run produced.
type BacktestResult struct {
	Strategy   string
	Symbol     string
	Timestamps []time.Time

	Equity       []float64 // account value after each bar
	TimeReturns  []float64 // per-bar equity returns; the first is against the initial cash
	AssetReturns []float64 // per-bar close returns; the first is NaN
	Drawdown     []float64 // percent below the running equity peak
	Signal       []float64 // the strategy's signal, NaN where undefined

	ClosedTrades []domain.TradeRecord
	OpenTrades   []domain.TradeRecord

	Orders   int
	Rejected int // rejected before reaching the broker or by it
	Margin   int

	StartEquity float64
	EndEquity   float64
}

// SignalSeries returns the recorded signal as an analysis.Series.
func (r *BacktestResult) SignalSeries() analysis.Series {
	return analysis.Values(r.Signal)
}

// RunOutcome pairs one RunAll entry with its result or error.
type RunOutcome struct {
	Name   string
	Result *BacktestResult
	Err    error
}

// Backtester replays historical bar data through strategies, each against
// its own simulated broker.
type Backtester struct {
	registry *Registry
	opts     Options
	log      *slog.Logger
}

// NewBacktester creates a Backtester that looks up strategies in the
// provided registry.
func NewBacktester(registry *Registry, opts Options) *Backtester {
	if opts.FillOn == "" {
		opts.FillOn = FillOnClose
	}
	if opts.InitialCash <= 0 {
		opts.InitialCash = DefaultOptions().InitialCash
	}
	return &Backtester{
		registry: registry,
		opts:     opts,
		log:      slog.Default().With("component", "backtester"),
	}
}

// Run executes strat over bars. Configuration problems (no signal, empty or
// unordered bars, unknown fill policy) fail before the first bar.
func (bt *Backtester) Run(ctx context.Context, strat Strategy, bars []domain.Bar) (*BacktestResult, error) {
	if err := analysis.Precheck(strat.Signal()); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", strat.Name(), err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("strategy %s: no bars", strat.Name())
	}
	if err := domain.ValidateBars(bars); err != nil {
		return nil, err
	}
	if bt.opts.FillOn != FillOnClose && bt.opts.FillOn != FillOnNextOpen {
		return nil, fmt.Errorf("unknown fill policy %q", bt.opts.FillOn)
	}
	if err := strat.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing %s: %w", strat.Name(), err)
	}

	var sim broker.Simulator = broker.NewSimulatorBroker(bt.opts.InitialCash, bt.opts.Commission)
	eng := engine.NewEngine(sim, engine.NewRiskManager(bt.opts.MaxPositionPct), bt.opts.LotSize)

	n := len(bars)
	res := &BacktestResult{
		Strategy:     strat.Name(),
		Symbol:       bars[0].Symbol,
		Timestamps:   make([]time.Time, n),
		Equity:       make([]float64, n),
		TimeReturns:  make([]float64, n),
		AssetReturns: make([]float64, n),
		Drawdown:     make([]float64, n),
		Signal:       make([]float64, n),
		StartEquity:  bt.opts.InitialCash,
	}

	closeReturns := indicator.NewPercentChange(1)
	prev, peak := bt.opts.InitialCash, bt.opts.InitialCash

	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if bt.opts.FillOn == FillOnNextOpen {
			bt.fill(ctx, strat, sim, res, i, bar, bar.Open)
		}

		intents, err := strat.OnBar(ctx, i, bar)
		if err != nil {
			return nil, fmt.Errorf("%s bar %d: %w", strat.Name(), i, err)
		}
		for _, intent := range intents {
			order, err := eng.Submit(ctx, i, intent, bar)
			if err != nil {
				return nil, fmt.Errorf("%s bar %d: %w", strat.Name(), i, err)
			}
			res.Orders++
			if order.Status == domain.OrderStatusRejected {
				res.Rejected++
			}
			strat.OnOrder(ctx, *order)
		}

		if bt.opts.FillOn == FillOnClose {
			bt.fill(ctx, strat, sim, res, i, bar, bar.Close)
		}

		sim.MarkToMarket(bar)
		equity := sim.Equity()
		peak = math.Max(peak, equity)

		res.Timestamps[i] = bar.Timestamp
		res.Equity[i] = equity
		res.TimeReturns[i] = equity/prev - 1
		res.AssetReturns[i] = closeReturns.Push(bar.Close)
		res.Drawdown[i] = (peak - equity) / peak * 100
		prev = equity
	}

	sig := strat.Signal()
	for i := range res.Signal {
		res.Signal[i] = sig.ValueAt(i)
	}
	res.ClosedTrades = sim.ClosedTrades()
	res.OpenTrades = sim.OpenTrades()
	res.EndEquity = res.Equity[n-1]

	bt.log.Info("ending value",
		"strategy", res.Strategy,
		"value", fmt.Sprintf("%.2f", res.EndEquity),
		"closedTrades", len(res.ClosedTrades),
		"openTrades", len(res.OpenTrades),
		"orders", res.Orders,
	)
	return res, nil
}

// fill executes pending broker orders at price and forwards the resulting
// order and trade notifications to the strategy.
func (bt *Backtester) fill(ctx context.Context, strat Strategy, sim broker.Simulator, res *BacktestResult, i int, bar domain.Bar, price float64) {
	orders, trades := sim.ProcessBar(i, bar, price)
	for _, o := range orders {
		switch o.Status {
		case domain.OrderStatusMargin:
			res.Margin++
		case domain.OrderStatusRejected:
			res.Rejected++
		}
		strat.OnOrder(ctx, o)
	}
	for _, t := range trades {
		strat.OnTrade(ctx, t)
	}
}

// RunAll runs each named strategy over the same bars with up to MaxWorkers
// goroutines. Outcomes are returned in the order of names; one run's error
// does not stop the others. Once ctx is cancelled no new runs start.
func (bt *Backtester) RunAll(ctx context.Context, names []string, bars []domain.Bar) []RunOutcome {
	outcomes := make([]RunOutcome, len(names))
	for i, name := range names {
		outcomes[i].Name = name
	}
	if len(names) == 0 {
		return outcomes
	}

	idxCh := make(chan int, len(names))
	for i := range names {
		idxCh <- i
	}
	close(idxCh)

	var wg sync.WaitGroup
	workers := min(max(bt.opts.MaxWorkers, 1), len(names))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range idxCh {
				if err := ctx.Err(); err != nil {
					outcomes[idx].Err = err
					continue
				}
				outcomes[idx].Result, outcomes[idx].Err = bt.runNamed(ctx, names[idx], bars)
				if outcomes[idx].Err != nil {
					bt.log.Error("backtest failed", "strategy", names[idx], "error", outcomes[idx].Err)
				}
			}
		}()
	}
	wg.Wait()
	return outcomes
}

func (bt *Backtester) runNamed(ctx context.Context, name string, bars []domain.Bar) (*BacktestResult, error) {
	strat, err := bt.registry.New(name)
	if err != nil {
		return nil, err
	}
	return bt.Run(ctx, strat, bars)
}
