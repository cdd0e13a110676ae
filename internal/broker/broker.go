// Package broker defines the order-routing interface the engine talks to and
// the simulated broker that fills backtest orders against historical bars.
package broker

import (
	"context"
	"errors"

	"rsrs/internal/domain"
)

// ErrOrderNotFound is returned when an order ID is unknown to the broker.
var ErrOrderNotFound = errors.New("order not found")

// Broker accepts orders and reports account state. Orders are only accepted
// here; when they fill is up to the implementation.
type Broker interface {
	// Name returns the broker identifier, e.g. "simulator".
	Name() string

	// SubmitOrder validates and accepts an order. The returned copy carries
	// the assigned ID and an accepted or rejected status.
	SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)

	// CancelOrder cancels an order that has not reached a terminal status.
	CancelOrder(ctx context.Context, orderID string) error

	// GetPositions returns the open positions sorted by symbol.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetAccount returns cash, equity and buying power as of the last mark.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
}

// Simulator is a Broker driven bar by bar by the backtester.
type Simulator interface {
	Broker

	// ProcessBar fills every accepted order at price and returns the updated
	// orders in submission order together with the trades they closed.
	ProcessBar(i int, bar domain.Bar, price float64) ([]domain.Order, []domain.TradeRecord)

	// MarkToMarket values open positions at the bar's close.
	MarkToMarket(bar domain.Bar)

	// Equity returns cash plus the marked value of open positions.
	Equity() float64

	ClosedTrades() []domain.TradeRecord
	OpenTrades() []domain.TradeRecord
}
