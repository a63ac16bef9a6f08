// Package gateway abstracts the venue: order book reads, order placement,
// cancellation and open-order listing, all scoped to a (market, wallet
// subaccount) pair.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
)

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook is a depth-limited snapshot of a market's book.
// Bids are sorted descending, asks ascending.
type OrderBook struct {
	MarketID     string
	Bids         []BookLevel
	Asks         []BookLevel
	UpdatedUnixM int64
}

// BestBid returns the top bid, or false when the side is empty.
func (b *OrderBook) BestBid() (decimal.Decimal, bool) {
	if len(b.Bids) == 0 {
		return decimal.Zero, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the top ask, or false when the side is empty.
func (b *OrderBook) BestAsk() (decimal.Decimal, bool) {
	if len(b.Asks) == 0 {
		return decimal.Zero, false
	}
	return b.Asks[0].Price, true
}

// OrderRef identifies one resting order on the venue.
type OrderRef struct {
	OrderHash string
	MarketID  string
	Side      domain.Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
}

// PlaceResult is the venue's acknowledgement of a submission. Price is the
// price actually submitted after tick quantization or market-order
// emulation, which can differ from what the caller asked for.
type PlaceResult struct {
	TxHash    string
	OrderHash string
	Price     decimal.Decimal
	Accepted  bool
	Message   string // venue-side rejection reason, when not accepted
}

// Gateway is the exchange abstraction consumed by the quoting engine and
// the reference price oracle. Implementations must quantize prices to the
// market tick before submission and reject submissions whose quantization
// would shift the price by more than one tick.
type Gateway interface {
	// GetOrderbook returns the book for a market, depth levels per side.
	GetOrderbook(ctx context.Context, marketID string, depth int) (*OrderBook, error)

	// PlaceLimitOrder submits a resting limit order.
	PlaceLimitOrder(ctx context.Context, market *domain.MarketConfig, wallet *domain.WalletState, side domain.Side, price, quantity decimal.Decimal) (PlaceResult, error)

	// PlaceMarketOrder emulates a market order with a limit priced through
	// the touch (the venue has no native market order). Immediate fill is
	// expected, not guaranteed.
	PlaceMarketOrder(ctx context.Context, market *domain.MarketConfig, wallet *domain.WalletState, side domain.Side, quantity decimal.Decimal) (PlaceResult, error)

	// CancelOrder cancels a single resting order.
	CancelOrder(ctx context.Context, market *domain.MarketConfig, wallet *domain.WalletState, ref OrderRef) error

	// BatchCancelOrders cancels many orders in one transaction. Preferred
	// over per-order cancellation: it bounds transaction count and signer
	// sequence contention.
	BatchCancelOrders(ctx context.Context, wallet *domain.WalletState, refs []OrderRef) error

	// GetOpenOrders lists the wallet's resting orders on a market.
	GetOpenOrders(ctx context.Context, market *domain.MarketConfig, wallet *domain.WalletState) ([]OrderRef, error)

	// GetBalances returns the wallet subaccount balances keyed by token
	// denomination.
	GetBalances(ctx context.Context, wallet *domain.WalletState) (map[string]decimal.Decimal, error)
}
