package builtins

import "rsrs/internal/strategy"

// Register adds one RSRS factory per params to r, keyed by the variant name.
func Register(r *strategy.Registry, params ...Params) {
	for _, p := range params {
		p := p
		r.Register(p.Name, func() strategy.Strategy { return NewRSRS(p) })
	}
}

// RegisterBuyAndHold adds the buy-and-hold benchmark to r.
func RegisterBuyAndHold(r *strategy.Registry, target float64) string {
	s := NewBuyAndHold(target)
	r.Register(s.Name(), func() strategy.Strategy { return NewBuyAndHold(target) })
	return s.Name()
}

// NewDefaultRegistry returns a registry holding the standard variants and
// the benchmark.
func NewDefaultRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r, Variants()...)
	RegisterBuyAndHold(r, DefaultTargetPercent)
	return r
}
