package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
)

// PlacedOrder captures one submission observed by the mock.
type PlacedOrder struct {
	MarketID string
	WalletID string
	Side     domain.Side
	Kind     domain.OrderKind
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// MockGateway is a scripted in-memory gateway for tests. Books are set per
// market; every accepted submission is recorded and becomes an open order
// until cancelled.
type MockGateway struct {
	mu sync.Mutex

	books      map[string]*OrderBook
	placed     []PlacedOrder
	open       map[string][]OrderRef // keyed by wallet id
	nextID     int
	batchCalls int

	FailNext        int // fail this many upcoming placements
	FailAll         bool
	FailBatchCancel bool
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		books: make(map[string]*OrderBook),
		open:  make(map[string][]OrderRef),
	}
}

// SetBook installs a book snapshot for a market.
func (m *MockGateway) SetBook(marketID string, bestBid, bestAsk decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[marketID] = &OrderBook{
		MarketID: marketID,
		Bids:     []BookLevel{{Price: bestBid, Quantity: decimal.NewFromInt(1000)}},
		Asks:     []BookLevel{{Price: bestAsk, Quantity: decimal.NewFromInt(1000)}},
	}
}

// ClearBook removes a market's book so reads fail.
func (m *MockGateway) ClearBook(marketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, marketID)
}

// Placed returns a copy of all observed submissions.
func (m *MockGateway) Placed() []PlacedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PlacedOrder, len(m.placed))
	copy(out, m.placed)
	return out
}

// ResetPlaced clears the submission record between test phases.
func (m *MockGateway) ResetPlaced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed = nil
}

func (m *MockGateway) GetOrderbook(_ context.Context, marketID string, _ int) (*OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[marketID]
	if !ok {
		return nil, fmt.Errorf("mock: no book for %s", marketID)
	}
	return book, nil
}

func (m *MockGateway) PlaceLimitOrder(_ context.Context, market *domain.MarketConfig, wallet *domain.WalletState, side domain.Side, price, quantity decimal.Decimal) (PlaceResult, error) {
	return m.place(market, wallet, side, domain.KindLimit, price, quantity)
}

func (m *MockGateway) PlaceMarketOrder(_ context.Context, market *domain.MarketConfig, wallet *domain.WalletState, side domain.Side, quantity decimal.Decimal) (PlaceResult, error) {
	// Emulated market order: price through the touch off the installed book.
	m.mu.Lock()
	book, ok := m.books[market.ID]
	m.mu.Unlock()
	price := decimal.Zero
	if ok {
		if side == domain.SideBuy {
			if ask, has := book.BestAsk(); has {
				price = ask.Mul(decimal.RequireFromString("1.002"))
			}
		} else {
			if bid, has := book.BestBid(); has {
				price = bid.Mul(decimal.RequireFromString("0.998"))
			}
		}
	}
	return m.place(market, wallet, side, domain.KindMarket, price, quantity)
}

func (m *MockGateway) place(market *domain.MarketConfig, wallet *domain.WalletState, side domain.Side, kind domain.OrderKind, price, quantity decimal.Decimal) (PlaceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAll || m.FailNext > 0 {
		if m.FailNext > 0 {
			m.FailNext--
		}
		return PlaceResult{Accepted: false, Message: "mock: scripted failure"}, fmt.Errorf("mock: scripted failure")
	}

	m.nextID++
	ref := OrderRef{
		OrderHash: fmt.Sprintf("mock-%d", m.nextID),
		MarketID:  market.ID,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
	}
	m.open[wallet.Config.ID] = append(m.open[wallet.Config.ID], ref)
	m.placed = append(m.placed, PlacedOrder{
		MarketID: market.ID,
		WalletID: wallet.Config.ID,
		Side:     side,
		Kind:     kind,
		Price:    price,
		Quantity: quantity,
	})

	slog.Debug("mock gateway: placed",
		slog.String("market", market.ID),
		slog.String("wallet", wallet.Config.ID),
		slog.String("side", string(side)),
		slog.String("price", price.String()),
	)
	return PlaceResult{TxHash: fmt.Sprintf("0xtx%d", m.nextID), OrderHash: ref.OrderHash, Price: price, Accepted: true}, nil
}

func (m *MockGateway) CancelOrder(_ context.Context, _ *domain.MarketConfig, wallet *domain.WalletState, ref OrderRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeOpen(wallet.Config.ID, []OrderRef{ref})
	return nil
}

func (m *MockGateway) BatchCancelOrders(_ context.Context, wallet *domain.WalletState, refs []OrderRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	if m.FailBatchCancel {
		return fmt.Errorf("mock: batch cancel rejected")
	}
	m.removeOpen(wallet.Config.ID, refs)
	return nil
}

// BatchCancelCalls returns how many batch-cancel transactions were issued.
func (m *MockGateway) BatchCancelCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchCalls
}

func (m *MockGateway) GetOpenOrders(_ context.Context, market *domain.MarketConfig, wallet *domain.WalletState) ([]OrderRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OrderRef
	for _, ref := range m.open[wallet.Config.ID] {
		if ref.MarketID == market.ID {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (m *MockGateway) GetBalances(_ context.Context, wallet *domain.WalletState) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{
		"inj":  decimal.NewFromInt(1000),
		"usdt": decimal.NewFromInt(100000),
	}, nil
}

// removeOpen must be called with the mutex held.
func (m *MockGateway) removeOpen(walletID string, refs []OrderRef) {
	drop := make(map[string]bool, len(refs))
	for _, r := range refs {
		drop[r.OrderHash] = true
	}
	kept := m.open[walletID][:0]
	for _, r := range m.open[walletID] {
		if !drop[r.OrderHash] {
			kept = append(kept, r)
		}
	}
	m.open[walletID] = kept
}
