// Package report turns backtest results into comparable performance
// metrics and renders them side by side.
package report

import (
	"math"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"rsrs/internal/analysis"
	"rsrs/internal/domain"
	"rsrs/internal/strategy"
)

// DefaultPeriodsPerYear annualizes daily bars.
const DefaultPeriodsPerYear = 252

// eps guards the ratio denominators, matching the published formulas.
const eps = 1e-6

// Performance is the metric set of one strategy run.
type Performance struct {
	Strategy string

	TotalReturnPct  float64
	AnnualReturnPct float64
	MaxDrawdownPct  float64
	Sharpe          float64
	Calmar          float64
	Sortino         float64
	Skewness        float64 // NaN with fewer than 4 returns
	Kurtosis        float64 // excess; NaN with fewer than 4 returns

	TotalTrades     int // closed plus open
	ClosedTrades    int
	WonTrades       int
	LostTrades      int
	WinRatePct      float64
	AvgWin          float64 // mean net PnL of winners
	AvgLoss         float64 // mean absolute net PnL of losers
	ProfitLossRatio float64

	IC analysis.ICResult

	StartEquity float64
	EndEquity   float64
}

// Generate computes the metrics of res. periodsPerYear annualizes returns;
// non-positive values use DefaultPeriodsPerYear.
func Generate(res *strategy.BacktestResult, ic analysis.ICResult, periodsPerYear int) Performance {
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}
	ppy := float64(periodsPerYear)

	p := Performance{
		Strategy:    res.Strategy,
		IC:          ic,
		StartEquity: res.StartEquity,
		EndEquity:   res.EndEquity,
	}

	// -- Returns --
	if res.StartEquity > 0 {
		p.TotalReturnPct = (res.EndEquity/res.StartEquity - 1) * 100
	}
	returns := lo.Filter(res.TimeReturns, func(r float64, _ int) bool { return finite(r) })
	if len(returns) > 0 {
		logSum := lo.SumBy(returns, func(r float64) float64 { return math.Log1p(r) })
		p.AnnualReturnPct = math.Expm1(logSum/float64(len(returns))*ppy) * 100
	}

	// -- Risk --
	if len(res.Drawdown) > 0 {
		p.MaxDrawdownPct = lo.Max(res.Drawdown)
	}
	if len(returns) > 1 {
		mean, std := stat.MeanStdDev(returns, nil)
		if std > 0 {
			p.Sharpe = mean / std * math.Sqrt(ppy)
		}
	}
	p.Calmar = p.AnnualReturnPct / (p.MaxDrawdownPct + eps)

	downside := lo.Filter(returns, func(r float64, _ int) bool { return r < 0 })
	if len(downside) > 1 {
		downStd := stat.StdDev(downside, nil) * math.Sqrt(ppy)
		p.Sortino = (p.AnnualReturnPct / 100) / (downStd + eps)
	}

	p.Skewness, p.Kurtosis = math.NaN(), math.NaN()
	if len(returns) >= 4 {
		p.Skewness = stat.Skew(returns, nil)
		p.Kurtosis = stat.ExKurtosis(returns, nil)
	}

	// -- Trades --
	p.ClosedTrades = len(res.ClosedTrades)
	p.TotalTrades = p.ClosedTrades + len(res.OpenTrades)
	won := lo.Filter(res.ClosedTrades, func(t domain.TradeRecord, _ int) bool { return t.PnLNet > 0 })
	lost := lo.Filter(res.ClosedTrades, func(t domain.TradeRecord, _ int) bool { return t.PnLNet < 0 })
	p.WonTrades, p.LostTrades = len(won), len(lost)

	p.WinRatePct = float64(p.WonTrades) / (float64(p.TotalTrades) + eps) * 100
	if len(won) > 0 {
		p.AvgWin = lo.SumBy(won, func(t domain.TradeRecord) float64 { return t.PnLNet }) / float64(len(won))
	}
	if len(lost) > 0 {
		p.AvgLoss = math.Abs(lo.SumBy(lost, func(t domain.TradeRecord) float64 { return t.PnLNet }) / float64(len(lost)))
	}
	p.ProfitLossRatio = p.AvgWin / (p.AvgLoss + eps)
	return p
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
