// Package domain defines the core value types shared across the backtesting
// harness: bars, order intents, orders, positions, and trade records.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnorderedBars is returned when a bar series is not strictly increasing
// in time.
var ErrUnorderedBars = errors.New("bars must have strictly increasing timestamps")

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a single OHLCV price bar.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// ValidateBars checks that bars are ordered by strictly increasing timestamp
// with no duplicates.
func ValidateBars(bars []Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("bar %d at %s follows %s: %w",
				i, bars[i].Timestamp.Format(time.DateOnly),
				bars[i-1].Timestamp.Format(time.DateOnly), ErrUnorderedBars)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// IntentSide is what a strategy asks for: open or close its position.
type IntentSide string

const (
	IntentEnter IntentSide = "enter"
	IntentExit  IntentSide = "exit"
)

// OrderIntent is emitted by a strategy. Sizing and routing belong to the
// engine; an exit always closes the full position.
type OrderIntent struct {
	Side          IntentSide
	TargetPercent float64 // fraction of equity to allocate on enter
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
)

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusMargin    OrderStatus = "margin"
)

// Terminal reports whether no further transitions can happen.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusMargin:
		return true
	}
	return false
}

// Order is a broker order.
type Order struct {
	ID             string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Status         OrderStatus
	Qty            int64
	FilledQty      int64
	FilledAvgPrice float64
	Commission     float64
	Reason         string // set on rejection
	BarIndex       int    // bar on which the order was submitted
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Value returns the executed notional of the order.
func (o Order) Value() float64 {
	return float64(o.FilledQty) * o.FilledAvgPrice
}

// ---------------------------------------------------------------------------
// Positions and trades
// ---------------------------------------------------------------------------

// PositionSide is the direction of a held position.
type PositionSide string

const (
	PositionSideLong PositionSide = "long"
	PositionSideFlat PositionSide = "flat"
)

// Position is the simulated holding in one instrument. It is owned by the
// broker; everyone else works with copies.
type Position struct {
	Symbol        string
	Qty           int64
	AvgEntryPrice float64
	Side          PositionSide
}

// TradeRecord is one round trip. It is created when a position opens and
// finalized when it closes.
type TradeRecord struct {
	Symbol     string
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Qty        int64
	PnL        float64 // gross
	PnLNet     float64 // net of commission
	Commission float64
	Closed     bool
}

// AccountInfo is a snapshot of the simulated account.
type AccountInfo struct {
	Cash        float64
	Equity      float64
	BuyingPower float64
}
