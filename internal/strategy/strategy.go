// Package strategy defines the Strategy interface for trading strategies,
// a Registry of strategy factories, and the Backtester that replays bars
// through them.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"rsrs/internal/domain"
)

// ErrUnknownStrategy is returned when a strategy name is not registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is the interface that all trading strategies must implement. A
// strategy instance serves exactly one run.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs any one-time setup required before the strategy begins
	// processing market data.
	Init(ctx context.Context) error

	// OnBar is called once per bar, in order, with the bar's index. It
	// returns zero or more order intents.
	OnBar(ctx context.Context, i int, bar domain.Bar) ([]domain.OrderIntent, error)

	// OnOrder is called whenever an order submitted for this strategy
	// changes status.
	OnOrder(ctx context.Context, order domain.Order)

	// OnTrade is called when a trade opens or closes.
	OnTrade(ctx context.Context, trade domain.TradeRecord)

	// Signal exposes the value the strategy trades on, one per processed bar.
	Signal() Signal
}

// Signal gives read access to a per-bar signal series. NaN marks bars where
// the signal is undefined.
type Signal interface {
	ValueAt(i int) float64
	Len() int
}

// Compile-time interface check.
var _ Signal = (*SignalHistory)(nil)

// SignalHistory is a slice-backed Signal that strategies append to as they
// process bars.
type SignalHistory struct {
	values []float64
}

// Append records the value of the next bar.
func (h *SignalHistory) Append(v float64) {
	h.values = append(h.values, v)
}

// ValueAt returns the value at bar i, or NaN when i is out of range.
func (h *SignalHistory) ValueAt(i int) float64 {
	if i < 0 || i >= len(h.values) {
		return math.NaN()
	}
	return h.values[i]
}

// Len returns the number of recorded bars.
func (h *SignalHistory) Len() int { return len(h.values) }

// Values returns a copy of the recorded series.
func (h *SignalHistory) Values() []float64 {
	out := make([]float64, len(h.values))
	copy(out, h.values)
	return out
}

// Reset discards all recorded values.
func (h *SignalHistory) Reset() { h.values = h.values[:0] }

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Factory builds a fresh strategy instance.
type Factory func() Strategy

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a strategy factory to the registry under name, replacing any
// previous registration.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get builds a new instance of the named strategy. The second return value
// indicates whether the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	f, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// New is like Get but reports an unknown name as ErrUnknownStrategy.
func (r *Registry) New(name string) (Strategy, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownStrategy)
	}
	return s, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
