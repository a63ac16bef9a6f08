package domain

import "github.com/shopspring/decimal"

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind distinguishes resting limit orders from market-equivalent
// orders. The venue has no native market order; market orders are emulated
// by an aggressively priced limit.
type OrderKind string

const (
	KindLimit  OrderKind = "LIMIT"
	KindMarket OrderKind = "MARKET"
)

// OrderStatus lifecycle: PENDING -> OPEN -> {FILLED, CANCELLED, FAILED}.
// Terminal states are sticky; no order re-enters PENDING.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusOpen      OrderStatus = "OPEN"
	StatusFilled    OrderStatus = "FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusFailed    OrderStatus = "FAILED"
)

// Terminal reports whether the status ends the order lifecycle.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusFailed
}

// Order is a locally known order. Created when the gateway acknowledges
// submission; never physically deleted, only status-transitioned.
type Order struct {
	ID           string
	MarketID     string
	WalletID     string
	Side         Side
	Kind         OrderKind
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Status       OrderStatus
	FilledQty    decimal.Decimal
	TxHash       string
	Error        string
	CreatedUnixM int64 // Unix Microseconds
	UpdatedUnixM int64
}

// IsOpen checks if the order is still active.
func (o *Order) IsOpen() bool {
	return o.Status == StatusPending || o.Status == StatusOpen
}

// TransitionTo applies a status change, enforcing monotonicity: terminal
// states never change, and PENDING cannot be re-entered. Returns false when
// the transition is rejected.
func (o *Order) TransitionTo(next OrderStatus, nowUnixM int64) bool {
	if o.Status.Terminal() {
		return false
	}
	if next == StatusPending && o.Status != StatusPending {
		return false
	}
	o.Status = next
	o.UpdatedUnixM = nowUnixM
	return true
}

// OrderRequest is the ephemeral input for manual order placement. An empty
// Wallet binding means auto-select from the pool.
type OrderRequest struct {
	MarketID string
	Wallet   WalletBinding
	Side     Side
	Kind     OrderKind
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Validate checks request fields before the request becomes an Order.
func (r *OrderRequest) Validate() error {
	if r.MarketID == "" {
		return ErrMissingMarket
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return ErrBadSide
	}
	if r.Kind != KindLimit && r.Kind != KindMarket {
		return ErrBadKind
	}
	if r.Kind == KindLimit && r.Price.Sign() <= 0 {
		return ErrBadPrice
	}
	if r.Quantity.Sign() <= 0 {
		return ErrBadQuantity
	}
	return nil
}
