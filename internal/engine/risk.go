package engine

import (
	"context"
	"errors"
	"fmt"

	"rsrs/internal/domain"
)

// ErrRiskRejected wraps every pre-trade rejection.
var ErrRiskRejected = errors.New("rejected by risk check")

// RiskManager enforces pre-trade risk rules on position sizing.
type RiskManager struct {
	maxPositionPct float64
}

// NewRiskManager creates a RiskManager with the specified risk threshold.
//
//   - maxPositionPct: maximum fraction of equity a buy order may commit
//     (e.g. 1.0 for the whole account). Non-positive values disable the
//     notional check.
func NewRiskManager(maxPositionPct float64) *RiskManager {
	return &RiskManager{maxPositionPct: maxPositionPct}
}

// CheckOrder evaluates whether the proposed order, priced at price, complies
// with the configured risk limits given the current account state.
func (rm *RiskManager) CheckOrder(_ context.Context, order *domain.Order, price float64, account *domain.AccountInfo) error {
	if order.Qty <= 0 {
		return fmt.Errorf("%w: quantity %d must be positive", ErrRiskRejected, order.Qty)
	}
	if order.Side != domain.OrderSideBuy || rm.maxPositionPct <= 0 {
		return nil
	}
	notional := float64(order.Qty) * price
	limit := account.Equity * rm.maxPositionPct
	if notional > limit {
		return fmt.Errorf("%w: notional %.2f exceeds %.0f%% of equity %.2f",
			ErrRiskRejected, notional, rm.maxPositionPct*100, account.Equity)
	}
	return nil
}
