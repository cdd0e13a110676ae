// Package engine turns strategy intents into sized broker orders, applying
// pre-trade risk checks on the way.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"rsrs/internal/broker"
	"rsrs/internal/domain"
)

// Engine sizes order intents against the account, runs them through the
// risk manager and forwards the survivors to the broker.
type Engine struct {
	broker      broker.Broker
	riskChecker *RiskManager
	lotSize     int64
	log         *slog.Logger
}

// NewEngine creates a new Engine wired with the given dependencies. A nil
// riskChecker disables risk checks; lot sizes below 1 are treated as 1.
func NewEngine(b broker.Broker, riskChecker *RiskManager, lotSize int64) *Engine {
	return &Engine{
		broker:      b,
		riskChecker: riskChecker,
		lotSize:     max(lotSize, 1),
		log:         slog.Default().With("component", "engine"),
	}
}

// Submit converts intent into an order for bar and submits it. Orders that
// cannot be sized or fail the risk check are returned with status rejected
// and never reach the broker. The error is reserved for broker failures.
func (e *Engine) Submit(ctx context.Context, i int, intent domain.OrderIntent, bar domain.Bar) (*domain.Order, error) {
	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}

	order := &domain.Order{
		Symbol:    bar.Symbol,
		Type:      domain.OrderTypeMarket,
		Status:    domain.OrderStatusSubmitted,
		BarIndex:  i,
		CreatedAt: bar.Timestamp,
		UpdatedAt: bar.Timestamp,
	}

	switch intent.Side {
	case domain.IntentEnter:
		order.Side = domain.OrderSideBuy
		order.Qty = e.size(account.Equity, intent.TargetPercent, bar.Close)
	case domain.IntentExit:
		order.Side = domain.OrderSideSell
		qty, err := e.positionQty(ctx, bar.Symbol)
		if err != nil {
			return nil, err
		}
		order.Qty = qty
		if qty == 0 {
			return e.reject(order, "no position to exit"), nil
		}
	default:
		return e.reject(order, fmt.Sprintf("unknown intent %q", intent.Side)), nil
	}

	if e.riskChecker != nil {
		if err := e.riskChecker.CheckOrder(ctx, order, bar.Close, account); err != nil {
			return e.reject(order, err.Error()), nil
		}
	} else if order.Qty <= 0 {
		return e.reject(order, "quantity must be positive"), nil
	}

	submitted, err := e.broker.SubmitOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("submitting %s order: %w", order.Side, err)
	}
	return submitted, nil
}

// CancelOrder requests cancellation of an open order.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	return e.broker.CancelOrder(ctx, orderID)
}

// GetPositions returns all currently open positions.
func (e *Engine) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return e.broker.GetPositions(ctx)
}

// size returns the whole-lot share count worth target of equity at price.
func (e *Engine) size(equity, target, price float64) int64 {
	if price <= 0 || target <= 0 || equity <= 0 || math.IsNaN(price) {
		return 0
	}
	lots := math.Floor(equity * target / price / float64(e.lotSize))
	return int64(lots) * e.lotSize
}

func (e *Engine) positionQty(ctx context.Context, symbol string) (int64, error) {
	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting positions: %w", err)
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p.Qty, nil
		}
	}
	return 0, nil
}

func (e *Engine) reject(order *domain.Order, reason string) *domain.Order {
	order.Status = domain.OrderStatusRejected
	order.Reason = reason
	e.log.Info("order rejected", "symbol", order.Symbol, "side", order.Side,
		"qty", order.Qty, "reason", reason)
	return order
}
