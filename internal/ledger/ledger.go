// Package ledger is the in-memory registry of locally known orders.
// Orders are never physically deleted, only status-transitioned; the
// per-market buy/sell id lists tell the quoting engine whether resting
// quotes already exist.
package ledger

import (
	"sync"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
)

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	MarketID string
	WalletID string
}

// Ledger is safe for concurrent use: the execution cycle owns it, but
// administrative calls (manual cancel, status) may arrive from other
// goroutines.
type Ledger struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	buys   map[string][]string // market id -> order ids
	sells  map[string][]string
}

func New() *Ledger {
	return &Ledger{
		orders: make(map[string]*domain.Order),
		buys:   make(map[string][]string),
		sells:  make(map[string][]string),
	}
}

// Record registers a new order and tracks it in the per-market side lists.
func (l *Ledger) Record(o *domain.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *o
	l.orders[o.ID] = &cp
	if o.Side == domain.SideBuy {
		l.buys[o.MarketID] = append(l.buys[o.MarketID], o.ID)
	} else {
		l.sells[o.MarketID] = append(l.sells[o.MarketID], o.ID)
	}
}

// Get returns a copy of the order, or false.
func (l *Ledger) Get(id string) (domain.Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// List returns copies of all orders matching the filter.
func (l *Ledger) List(f Filter) []domain.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Order
	for _, o := range l.orders {
		if f.MarketID != "" && o.MarketID != f.MarketID {
			continue
		}
		if f.WalletID != "" && o.WalletID != f.WalletID {
			continue
		}
		out = append(out, *o)
	}
	return out
}

// MarkOpen transitions a pending order to open.
func (l *Ledger) MarkOpen(id string, nowUnixM int64) bool {
	return l.transition(id, domain.StatusOpen, nowUnixM)
}

// MarkCancelled transitions the order to cancelled and removes it from the
// side lists. Cancelling an already-cancelled order is a no-op success.
func (l *Ledger) MarkCancelled(id string, nowUnixM int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[id]
	if !ok {
		return false
	}
	if o.Status == domain.StatusCancelled {
		return true // idempotent
	}
	if !o.TransitionTo(domain.StatusCancelled, nowUnixM) {
		return false
	}
	l.untrackLocked(o)
	return true
}

// MarkFilled transitions the order to filled with the given fill quantity.
func (l *Ledger) MarkFilled(id string, filled decimal.Decimal, nowUnixM int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[id]
	if !ok {
		return false
	}
	if !o.TransitionTo(domain.StatusFilled, nowUnixM) {
		return false
	}
	o.FilledQty = filled
	l.untrackLocked(o)
	return true
}

// MarkFailed transitions the order to failed, keeping the error message.
func (l *Ledger) MarkFailed(id, reason string, nowUnixM int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[id]
	if !ok {
		return false
	}
	if !o.TransitionTo(domain.StatusFailed, nowUnixM) {
		return false
	}
	o.Error = reason
	l.untrackLocked(o)
	return true
}

// BuyOrders returns the resting buy order ids for a market.
func (l *Ledger) BuyOrders(marketID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.buys[marketID]...)
}

// SellOrders returns the resting sell order ids for a market.
func (l *Ledger) SellOrders(marketID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sells[marketID]...)
}

// RestingCount returns how many tracked orders rest on the market.
func (l *Ledger) RestingCount(marketID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buys[marketID]) + len(l.sells[marketID])
}

// ClearMarket cancels the tracking lists for one market, marking every
// tracked order cancelled. Used by cancel-all.
func (l *Ledger) ClearMarket(marketID string, nowUnixM int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range append(append([]string(nil), l.buys[marketID]...), l.sells[marketID]...) {
		if o, ok := l.orders[id]; ok {
			o.TransitionTo(domain.StatusCancelled, nowUnixM)
		}
	}
	delete(l.buys, marketID)
	delete(l.sells, marketID)
}

// Markets lists every market with tracked resting orders.
func (l *Ledger) Markets() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for m := range l.buys {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for m := range l.sells {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// untrackLocked removes the order id from its side list. Mutex held.
func (l *Ledger) untrackLocked(o *domain.Order) {
	lists := l.buys
	if o.Side == domain.SideSell {
		lists = l.sells
	}
	ids := lists[o.MarketID]
	for i, id := range ids {
		if id == o.ID {
			lists[o.MarketID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(lists[o.MarketID]) == 0 {
		delete(lists, o.MarketID)
	}
}

// transition applies a generic status change under the lock.
func (l *Ledger) transition(id string, next domain.OrderStatus, nowUnixM int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return false
	}
	return o.TransitionTo(next, nowUnixM)
}
