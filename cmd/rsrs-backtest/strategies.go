package main

import (
	"fmt"

	"rsrs/internal/config"
	"rsrs/internal/strategy"
	"rsrs/internal/strategy/builtins"
)

// buildRegistry registers the configured RSRS variants, or the five standard
// ones when none are configured, and returns the run order.
func buildRegistry(cfg *config.Config) (*strategy.Registry, []string, error) {
	params, err := variantParams(cfg)
	if err != nil {
		return nil, nil, err
	}

	reg := strategy.NewRegistry()
	builtins.Register(reg, params...)
	names := make([]string, 0, len(params)+1)
	for _, p := range params {
		names = append(names, p.Name)
	}
	if cfg.Backtest.IncludeBenchmark {
		names = append(names, builtins.RegisterBuyAndHold(reg, builtins.DefaultTargetPercent))
	}
	return reg, names, nil
}

func variantParams(cfg *config.Config) ([]builtins.Params, error) {
	if len(cfg.Strategies) == 0 {
		params := builtins.Variants()
		for i := range params {
			applySignal(&params[i], cfg.Signal)
		}
		return params, nil
	}

	params := make([]builtins.Params, 0, len(cfg.Strategies))
	seen := make(map[string]bool, len(cfg.Strategies))
	for i, sc := range cfg.Strategies {
		sel, err := builtins.ParseSelector(sc.Selector)
		if err != nil {
			return nil, fmt.Errorf("strategies[%d]: %w", i, err)
		}
		p := builtins.DefaultParams(sel)
		applySignal(&p, cfg.Signal)
		if sc.Name != "" {
			p.Name = sc.Name
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("strategies[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if sc.BuyThreshold != nil {
			p.BuyThreshold = *sc.BuyThreshold
		}
		if sc.SellThreshold != nil {
			p.SellThreshold = *sc.SellThreshold
		}
		if sc.TargetPercent > 0 {
			p.TargetPercent = sc.TargetPercent
		}
		if sc.DistPeriod > 0 {
			p.DistPeriod = sc.DistPeriod
		}
		params = append(params, p)
	}
	return params, nil
}

// applySignal sets the shared window lengths; a zero dist period keeps the
// selector's default.
func applySignal(p *builtins.Params, sig config.Signal) {
	p.RSRSPeriod = sig.RSRSPeriod
	p.RankPeriod = sig.RankPeriod
	if sig.DistPeriod > 0 {
		p.DistPeriod = sig.DistPeriod
	}
}
