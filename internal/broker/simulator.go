package broker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rsrs/internal/domain"
)

// Compile-time interface check.
var _ Simulator = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface for backtesting. Orders are
// accepted on submission and filled when the driver calls ProcessBar; cash is
// kept in decimal so repeated fills do not accumulate rounding error.
type SimulatorBroker struct {
	cash       decimal.Decimal
	commission decimal.Decimal // fraction of notional

	positions map[string]*domain.Position
	orders    map[string]*domain.Order
	pending   []string // accepted order IDs in submission order
	lastPrice map[string]float64

	open     map[string]*domain.TradeRecord
	realized map[string]float64 // gross PnL realized by partial exits of open trades
	closed   []domain.TradeRecord

	log *slog.Logger
}

// NewSimulatorBroker creates a SimulatorBroker holding initialCash and
// charging commission (a fraction of notional) on every fill.
func NewSimulatorBroker(initialCash, commission float64) *SimulatorBroker {
	return &SimulatorBroker{
		cash:       decimal.NewFromFloat(initialCash),
		commission: decimal.NewFromFloat(commission),
		positions:  make(map[string]*domain.Position),
		orders:     make(map[string]*domain.Order),
		lastPrice:  make(map[string]float64),
		open:       make(map[string]*domain.TradeRecord),
		realized:   make(map[string]float64),
		log:        slog.Default().With("broker", "simulator"),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SubmitOrder validates the order and queues it for the next ProcessBar
// call. Invalid orders come back rejected; they are not errors.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	o := *order
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Type == "" {
		o.Type = domain.OrderTypeMarket
	}
	o.Status = domain.OrderStatusAccepted

	switch {
	case o.Qty <= 0:
		o.Status = domain.OrderStatusRejected
		o.Reason = "quantity must be positive"
	case o.Side == domain.OrderSideSell && o.Qty > b.positionQty(o.Symbol):
		o.Status = domain.OrderStatusRejected
		o.Reason = fmt.Sprintf("sell %d exceeds position %d", o.Qty, b.positionQty(o.Symbol))
	case o.Side != domain.OrderSideBuy && o.Side != domain.OrderSideSell:
		o.Status = domain.OrderStatusRejected
		o.Reason = fmt.Sprintf("unknown side %q", o.Side)
	}

	b.orders[o.ID] = &o
	if o.Status == domain.OrderStatusAccepted {
		b.pending = append(b.pending, o.ID)
	}
	out := o
	return &out, nil
}

// CancelOrder cancels an accepted order that has not been filled yet.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("%s: %w", orderID, ErrOrderNotFound)
	}
	if o.Status.Terminal() {
		return fmt.Errorf("order %s is already %s", orderID, o.Status)
	}
	o.Status = domain.OrderStatusCancelled
	b.dropPending(orderID)
	return nil
}

// GetPositions returns copies of all non-empty positions sorted by symbol.
func (b *SimulatorBroker) GetPositions(_ context.Context) ([]domain.Position, error) {
	positions := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		if p.Qty != 0 {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

// GetAccount returns cash, equity at the last marked prices, and buying power.
func (b *SimulatorBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	cash := b.cash.InexactFloat64()
	return &domain.AccountInfo{
		Cash:        cash,
		Equity:      b.Equity(),
		BuyingPower: cash,
	}, nil
}

// ---------------------------------------------------------------------------
// Simulation
// ---------------------------------------------------------------------------

// ProcessBar fills every pending order at price and returns the updated
// orders together with the trades opened or closed by those fills. Buys that
// cost more than the available cash end in status margin.
func (b *SimulatorBroker) ProcessBar(i int, bar domain.Bar, price float64) ([]domain.Order, []domain.TradeRecord) {
	if len(b.pending) == 0 {
		return nil, nil
	}
	pending := b.pending
	b.pending = nil

	var (
		orders []domain.Order
		trades []domain.TradeRecord
	)
	for _, id := range pending {
		o := b.orders[id]
		o.UpdatedAt = bar.Timestamp

		qty := decimal.NewFromInt(o.Qty)
		px := decimal.NewFromFloat(price)
		notional := qty.Mul(px)
		comm := notional.Mul(b.commission)

		switch o.Side {
		case domain.OrderSideBuy:
			if notional.Add(comm).Cmp(b.cash) > 0 {
				o.Status = domain.OrderStatusMargin
				o.Reason = fmt.Sprintf("cost %s exceeds cash %s", notional.Add(comm).StringFixed(2), b.cash.StringFixed(2))
				orders = append(orders, *o)
				continue
			}
			b.cash = b.cash.Sub(notional).Sub(comm)
		case domain.OrderSideSell:
			if o.Qty > b.positionQty(o.Symbol) {
				o.Status = domain.OrderStatusRejected
				o.Reason = "position changed before fill"
				orders = append(orders, *o)
				continue
			}
			b.cash = b.cash.Add(notional).Sub(comm)
		}

		o.Status = domain.OrderStatusFilled
		o.FilledQty = o.Qty
		o.FilledAvgPrice = price
		o.Commission = comm.InexactFloat64()
		orders = append(orders, *o)

		if t, ok := b.applyFill(o, bar); ok {
			trades = append(trades, t)
		}
		b.log.Debug("order filled", "bar", i, "id", o.ID, "side", o.Side,
			"qty", o.Qty, "price", price, "commission", o.Commission)
	}
	return orders, trades
}

// applyFill updates the position and trade record for a filled order and
// returns the trade when it was opened or closed by the fill.
func (b *SimulatorBroker) applyFill(o *domain.Order, bar domain.Bar) (domain.TradeRecord, bool) {
	pos, ok := b.positions[o.Symbol]
	if !ok {
		pos = &domain.Position{Symbol: o.Symbol, Side: domain.PositionSideFlat}
		b.positions[o.Symbol] = pos
	}

	switch o.Side {
	case domain.OrderSideBuy:
		total := pos.Qty + o.FilledQty
		pos.AvgEntryPrice = (pos.AvgEntryPrice*float64(pos.Qty) + o.FilledAvgPrice*float64(o.FilledQty)) / float64(total)
		pos.Qty = total
		pos.Side = domain.PositionSideLong

		t, ok := b.open[o.Symbol]
		if !ok {
			t = &domain.TradeRecord{
				Symbol:     o.Symbol,
				EntryTime:  bar.Timestamp,
				EntryPrice: o.FilledAvgPrice,
			}
			b.open[o.Symbol] = t
		} else {
			t.EntryPrice = pos.AvgEntryPrice
		}
		t.Qty = pos.Qty
		t.Commission += o.Commission
		t.PnLNet = t.PnL - t.Commission
		return *t, !ok

	case domain.OrderSideSell:
		t := b.open[o.Symbol]
		if t == nil {
			return domain.TradeRecord{}, false
		}
		b.realized[o.Symbol] += (o.FilledAvgPrice - pos.AvgEntryPrice) * float64(o.FilledQty)
		t.Commission += o.Commission

		pos.Qty -= o.FilledQty
		t.PnL = b.realized[o.Symbol] + (o.FilledAvgPrice-pos.AvgEntryPrice)*float64(pos.Qty)
		t.PnLNet = t.PnL - t.Commission
		if pos.Qty > 0 {
			return domain.TradeRecord{}, false
		}
		pos.Qty = 0
		pos.AvgEntryPrice = 0
		pos.Side = domain.PositionSideFlat

		t.ExitTime = bar.Timestamp
		t.ExitPrice = o.FilledAvgPrice
		t.Closed = true
		b.closed = append(b.closed, *t)
		delete(b.open, o.Symbol)
		delete(b.realized, o.Symbol)
		return *t, true
	}
	return domain.TradeRecord{}, false
}

// MarkToMarket records bar.Close as the valuation price of bar.Symbol and
// updates the running PnL of its open trade.
func (b *SimulatorBroker) MarkToMarket(bar domain.Bar) {
	b.lastPrice[bar.Symbol] = bar.Close
	if t, ok := b.open[bar.Symbol]; ok {
		if pos := b.positions[bar.Symbol]; pos != nil {
			t.PnL = b.realized[bar.Symbol] + (bar.Close-pos.AvgEntryPrice)*float64(pos.Qty)
			t.PnLNet = t.PnL - t.Commission
		}
	}
}

// Cash returns the available cash.
func (b *SimulatorBroker) Cash() float64 {
	return b.cash.InexactFloat64()
}

// Equity returns cash plus positions valued at their last marked price.
func (b *SimulatorBroker) Equity() float64 {
	equity := b.cash
	for sym, p := range b.positions {
		if p.Qty == 0 {
			continue
		}
		px, ok := b.lastPrice[sym]
		if !ok || math.IsNaN(px) {
			px = p.AvgEntryPrice
		}
		equity = equity.Add(decimal.NewFromInt(p.Qty).Mul(decimal.NewFromFloat(px)))
	}
	return equity.InexactFloat64()
}

// Position returns a copy of the position in symbol.
func (b *SimulatorBroker) Position(symbol string) domain.Position {
	if p, ok := b.positions[symbol]; ok {
		return *p
	}
	return domain.Position{Symbol: symbol, Side: domain.PositionSideFlat}
}

// Order returns a copy of the order with the given ID.
func (b *SimulatorBroker) Order(id string) (domain.Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// Pending returns the number of accepted orders waiting for a fill.
func (b *SimulatorBroker) Pending() int {
	return len(b.pending)
}

// ClosedTrades returns the finalized round trips in close order.
func (b *SimulatorBroker) ClosedTrades() []domain.TradeRecord {
	out := make([]domain.TradeRecord, len(b.closed))
	copy(out, b.closed)
	return out
}

// OpenTrades returns the trades still open, sorted by symbol.
func (b *SimulatorBroker) OpenTrades() []domain.TradeRecord {
	out := make([]domain.TradeRecord, 0, len(b.open))
	for _, t := range b.open {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (b *SimulatorBroker) positionQty(symbol string) int64 {
	if p, ok := b.positions[symbol]; ok {
		return p.Qty
	}
	return 0
}

func (b *SimulatorBroker) dropPending(id string) {
	for i, p := range b.pending {
		if p == id {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return
		}
	}
}
