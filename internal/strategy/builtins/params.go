// Package builtins provides the strategies that ship with the backtesting
// harness: the RSRS timing family and a buy-and-hold benchmark.
package builtins

import (
	"fmt"

	"rsrs/internal/indicator"
)

// Selector chooses which RSRS output a strategy trades on.
type Selector string

const (
	SelectorSlope       Selector = "slope"
	SelectorRank        Selector = "rank"
	SelectorZScore      Selector = "zscore"
	SelectorRevised     Selector = "revised"
	SelectorRightSkewed Selector = "right_skewed"
)

// DefaultTargetPercent is the fraction of equity committed on entry.
const DefaultTargetPercent = 0.99

// ParseSelector validates s.
func ParseSelector(s string) (Selector, error) {
	switch sel := Selector(s); sel {
	case SelectorSlope, SelectorRank, SelectorZScore, SelectorRevised, SelectorRightSkewed:
		return sel, nil
	}
	return "", fmt.Errorf("unknown selector %q", s)
}

// Params configures one RSRS strategy variant.
type Params struct {
	Name          string
	Selector      Selector
	BuyThreshold  float64
	SellThreshold float64
	RSRSPeriod    int // regression window N
	DistPeriod    int // slope distribution window M
	RankPeriod    int // rank selector only
	TargetPercent float64
}

// DefaultParams returns the published settings for sel.
func DefaultParams(sel Selector) Params {
	p := Params{
		Name:          "rsrs-" + string(sel),
		Selector:      sel,
		RSRSPeriod:    indicator.DefaultRSRSPeriod,
		DistPeriod:    252,
		RankPeriod:    indicator.DefaultRankPeriod,
		TargetPercent: DefaultTargetPercent,
		BuyThreshold:  0.7,
		SellThreshold: -0.7,
	}
	switch sel {
	case SelectorSlope:
		p.Name = "rsrs-base"
		p.DistPeriod = indicator.DefaultDistPeriod
		p.BuyThreshold, p.SellThreshold = 1.0, 0.8
	case SelectorRank:
		p.DistPeriod = indicator.DefaultDistPeriod
		p.BuyThreshold, p.SellThreshold = 0.7, 0.3
	case SelectorRightSkewed:
		p.Name = "rsrs-right-skewed"
	}
	return p
}

// Variants returns the five standard RSRS variants in report order.
func Variants() []Params {
	return []Params{
		DefaultParams(SelectorSlope),
		DefaultParams(SelectorRank),
		DefaultParams(SelectorZScore),
		DefaultParams(SelectorRevised),
		DefaultParams(SelectorRightSkewed),
	}
}
