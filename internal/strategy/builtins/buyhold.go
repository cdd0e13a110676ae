package builtins

import (
	"context"
	"log/slog"

	"rsrs/internal/domain"
	"rsrs/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*BuyAndHold)(nil)

// BuyAndHold enters on the first bar and never exits. Its signal is the
// close price.
type BuyAndHold struct {
	target  float64
	pending bool
	holding bool
	signal  strategy.SignalHistory
	log     *slog.Logger
}

// NewBuyAndHold creates a BuyAndHold committing target of equity. Non-positive
// targets use DefaultTargetPercent.
func NewBuyAndHold(target float64) *BuyAndHold {
	if target <= 0 {
		target = DefaultTargetPercent
	}
	return &BuyAndHold{target: target, log: slog.Default().With("strategy", "buy-and-hold")}
}

// Name returns "buy-and-hold".
func (s *BuyAndHold) Name() string { return "buy-and-hold" }

// Init resets all per-run state.
func (s *BuyAndHold) Init(_ context.Context) error {
	s.pending, s.holding = false, false
	s.signal.Reset()
	return nil
}

// OnBar enters while neither holding nor waiting on an order.
func (s *BuyAndHold) OnBar(_ context.Context, _ int, bar domain.Bar) ([]domain.OrderIntent, error) {
	s.signal.Append(bar.Close)
	if s.holding || s.pending {
		return nil, nil
	}
	s.pending = true
	return []domain.OrderIntent{{Side: domain.IntentEnter, TargetPercent: s.target}}, nil
}

// OnOrder tracks the single entry order; a failed entry is retried on the
// next bar.
func (s *BuyAndHold) OnOrder(_ context.Context, o domain.Order) {
	switch o.Status {
	case domain.OrderStatusFilled:
		s.pending, s.holding = false, true
		s.log.Info("BUY EXECUTED", "price", o.FilledAvgPrice, "cost", o.Value(), "commission", o.Commission)
	case domain.OrderStatusCancelled, domain.OrderStatusRejected, domain.OrderStatusMargin:
		s.pending = false
		s.log.Warn("order canceled/margin/rejected", "status", o.Status, "reason", o.Reason)
	}
}

// OnTrade implements strategy.Strategy.
func (s *BuyAndHold) OnTrade(_ context.Context, _ domain.TradeRecord) {}

// Signal implements strategy.Strategy.
func (s *BuyAndHold) Signal() strategy.Signal { return &s.signal }

// Holding reports whether the position is open.
func (s *BuyAndHold) Holding() bool { return s.holding }
