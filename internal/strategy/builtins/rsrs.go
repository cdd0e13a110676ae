package builtins

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"rsrs/internal/domain"
	"rsrs/internal/indicator"
	"rsrs/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RSRS)(nil)

// State is the position state of an RSRS strategy.
type State int

const (
	StateFlat State = iota
	StateLong
	StateOrderPending
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateFlat:
		return "FLAT"
	case StateLong:
		return "LONG"
	case StateOrderPending:
		return "ORDER_PENDING"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Transition records one state change.
type Transition struct {
	Bar    int
	From   State
	To     State
	Side   domain.IntentSide // intent in flight, for transitions out of or into ORDER_PENDING
	Reason string
}

// RSRS is the threshold-timing strategy shared by every RSRS variant. It
// enters when the selected value rises above BuyThreshold while flat and
// exits when it falls below SellThreshold while long. At most one order is
// outstanding at a time.
type RSRS struct {
	params Params

	ind  *indicator.RSRS
	rank *indicator.PercentRank

	state       State
	prior       State // state to restore if the pending order fails
	pendingSide domain.IntentSide
	bar         int

	signal      strategy.SignalHistory
	transitions []Transition
	log         *slog.Logger
}

// NewRSRS creates an RSRS strategy. Zero periods and target take the
// selector's defaults.
func NewRSRS(p Params) *RSRS {
	def := DefaultParams(p.Selector)
	if p.Name == "" {
		p.Name = def.Name
	}
	if p.RSRSPeriod <= 0 {
		p.RSRSPeriod = def.RSRSPeriod
	}
	if p.DistPeriod <= 0 {
		p.DistPeriod = def.DistPeriod
	}
	if p.RankPeriod <= 0 {
		p.RankPeriod = def.RankPeriod
	}
	if p.TargetPercent <= 0 {
		p.TargetPercent = def.TargetPercent
	}
	s := &RSRS{params: p}
	s.reset()
	return s
}

// Name returns the variant name.
func (s *RSRS) Name() string { return s.params.Name }

// Params returns the effective parameters.
func (s *RSRS) Params() Params { return s.params }

// Init resets all per-run state.
func (s *RSRS) Init(_ context.Context) error {
	if _, err := ParseSelector(string(s.params.Selector)); err != nil {
		return err
	}
	s.reset()
	return nil
}

func (s *RSRS) reset() {
	s.ind = indicator.NewRSRS(s.params.RSRSPeriod, s.params.DistPeriod)
	s.rank = indicator.NewPercentRank(s.params.RankPeriod)
	s.state, s.prior = StateFlat, StateFlat
	s.pendingSide = ""
	s.bar = 0
	s.signal.Reset()
	s.transitions = nil
	s.log = slog.Default().With("strategy", s.params.Name)
}

// Signal implements strategy.Strategy.
func (s *RSRS) Signal() strategy.Signal { return &s.signal }

// State returns the current state.
func (s *RSRS) State() State { return s.state }

// Transitions returns every state change so far, in order.
func (s *RSRS) Transitions() []Transition {
	out := make([]Transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}

// Warmup is the number of bars before the strategy may act.
func (s *RSRS) Warmup() int { return s.ind.Warmup() }

// OnBar advances the indicator and applies the threshold rules.
func (s *RSRS) OnBar(_ context.Context, i int, bar domain.Bar) ([]domain.OrderIntent, error) {
	s.bar = i
	sb := s.ind.Update(bar.High, bar.Low)

	v := s.value(sb)
	s.signal.Append(v)
	if !indicator.Available(v) || i < s.Warmup()-1 {
		return nil, nil
	}

	switch s.state {
	case StateFlat:
		if v > s.params.BuyThreshold {
			s.begin(i, domain.IntentEnter, fmt.Sprintf("%s %.4f > %.4f", s.params.Selector, v, s.params.BuyThreshold))
			return []domain.OrderIntent{{Side: domain.IntentEnter, TargetPercent: s.params.TargetPercent}}, nil
		}
	case StateLong:
		if v < s.params.SellThreshold {
			s.begin(i, domain.IntentExit, fmt.Sprintf("%s %.4f < %.4f", s.params.Selector, v, s.params.SellThreshold))
			return []domain.OrderIntent{{Side: domain.IntentExit}}, nil
		}
	}
	return nil, nil
}

// value extracts the selected signal from the bar's RSRS output. The rank
// transform consumes the raw slope, which exists after 2N-1 bars, before
// the warmup mask lifts.
func (s *RSRS) value(sb indicator.SignalBar) float64 {
	switch s.params.Selector {
	case SelectorSlope:
		return sb.Slope
	case SelectorRank:
		r := s.rank.Push(s.ind.Slope())
		if !indicator.Available(sb.Slope) {
			return math.NaN()
		}
		return r
	case SelectorZScore:
		return sb.ZScore
	case SelectorRevised:
		return sb.Revised
	case SelectorRightSkewed:
		return sb.RightSkewed
	}
	return math.NaN()
}

func (s *RSRS) begin(i int, side domain.IntentSide, reason string) {
	s.prior = s.state
	s.pendingSide = side
	s.transition(i, StateOrderPending, side, reason)
}

func (s *RSRS) transition(i int, to State, side domain.IntentSide, reason string) {
	s.transitions = append(s.transitions, Transition{Bar: i, From: s.state, To: to, Side: side, Reason: reason})
	s.log.Debug("state transition", "bar", i, "from", s.state, "to", to, "reason", reason)
	s.state = to
}

// OnOrder resolves the pending intent.
func (s *RSRS) OnOrder(_ context.Context, o domain.Order) {
	if s.state != StateOrderPending {
		return
	}

	switch o.Status {
	case domain.OrderStatusSubmitted, domain.OrderStatusAccepted:
		return

	case domain.OrderStatusFilled:
		if o.Side == domain.OrderSideBuy {
			s.log.Info("BUY EXECUTED",
				"date", o.UpdatedAt.Format("2006-01-02"),
				"price", fmt.Sprintf("%.2f", o.FilledAvgPrice),
				"cost", fmt.Sprintf("%.2f", o.Value()),
				"commission", fmt.Sprintf("%.2f", o.Commission))
			s.transition(s.bar, StateLong, s.pendingSide, "buy filled")
		} else {
			s.log.Info("SELL EXECUTED",
				"date", o.UpdatedAt.Format("2006-01-02"),
				"price", fmt.Sprintf("%.2f", o.FilledAvgPrice),
				"cost", fmt.Sprintf("%.2f", o.Value()),
				"commission", fmt.Sprintf("%.2f", o.Commission))
			s.transition(s.bar, StateFlat, s.pendingSide, "sell filled")
		}
		s.pendingSide = ""

	case domain.OrderStatusCancelled, domain.OrderStatusRejected, domain.OrderStatusMargin:
		s.log.Warn("order canceled/margin/rejected",
			"status", o.Status, "side", o.Side, "qty", o.Qty, "reason", o.Reason)
		s.transition(s.bar, s.prior, s.pendingSide, "order "+string(o.Status))
		s.pendingSide = ""
	}
}

// OnTrade logs closed round trips.
func (s *RSRS) OnTrade(_ context.Context, t domain.TradeRecord) {
	if !t.Closed {
		return
	}
	s.log.Info("trade closed",
		"gross", fmt.Sprintf("%.2f", t.PnL),
		"net", fmt.Sprintf("%.2f", t.PnLNet))
}
