// Package wallet owns the signing identities and distributes order flow
// across them round-robin.
package wallet

import (
	"sync"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
)

// Pool selects which wallet submits a given order. The round-robin index is
// a monotonic counter owned by the pool; it strictly increases (mod the
// enabled-wallet count) and is never reset mid-run.
type Pool struct {
	mu      sync.Mutex
	wallets []*domain.WalletState
	byID    map[string]*domain.WalletState
	next    uint64

	// placed counts orders per wallet per market; consulted by the
	// per-wallet cap when one is configured.
	placed map[string]map[string]int
}

// NewPool builds the pool from static wallet configs.
func NewPool(configs []domain.WalletConfig) *Pool {
	p := &Pool{
		byID:   make(map[string]*domain.WalletState, len(configs)),
		placed: make(map[string]map[string]int),
	}
	for _, cfg := range configs {
		ws := domain.NewWalletState(cfg)
		p.wallets = append(p.wallets, ws)
		p.byID[cfg.ID] = ws
	}
	return p
}

// Wallets returns all pool members in configuration order.
func (p *Pool) Wallets() []*domain.WalletState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*domain.WalletState, len(p.wallets))
	copy(out, p.wallets)
	return out
}

// Enabled returns the wallets eligible for order flow, in stable order.
func (p *Pool) Enabled() []*domain.WalletState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabledLocked()
}

func (p *Pool) enabledLocked() []*domain.WalletState {
	var out []*domain.WalletState
	for _, w := range p.wallets {
		if w.Config.Enabled && w.Status != domain.WalletDisabled && w.Status != domain.WalletError {
			out = append(out, w)
		}
	}
	return out
}

// Get looks up a wallet by id.
func (p *Pool) Get(id string) (*domain.WalletState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.byID[id]
	return w, ok
}

// Select returns the next wallet round-robin, or false when no wallet is
// enabled. Safe to call repeatedly within one cycle: consecutive calls walk
// the enabled set in stable order without skipping.
func (p *Pool) Select(marketID string) (*domain.WalletState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	enabled := p.enabledLocked()
	if len(enabled) == 0 {
		return nil, false
	}
	w := enabled[p.next%uint64(len(enabled))]
	p.next++
	return w, true
}

// CanPlaceOrder reports whether the wallet may submit on the market: it
// must be known and enabled, and below its per-market cap when one is
// configured (cap 0 leaves the limit inert).
func (p *Pool) CanPlaceOrder(walletID, marketID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.byID[walletID]
	if !ok || !w.Config.Enabled {
		return false
	}
	if w.Status == domain.WalletDisabled || w.Status == domain.WalletError {
		return false
	}
	if cap := w.Config.MaxOrdersPerMarket; cap > 0 {
		if p.placed[walletID][marketID] >= cap {
			return false
		}
	}
	return true
}

// RecordOrderPlaced bumps the wallet's activity counters.
func (p *Pool) RecordOrderPlaced(walletID, marketID string, count int, volume decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.byID[walletID]
	if !ok {
		return
	}
	w.OrdersPlaced += int64(count)
	w.Volume = w.Volume.Add(volume)

	byMarket, ok := p.placed[walletID]
	if !ok {
		byMarket = make(map[string]int)
		p.placed[walletID] = byMarket
	}
	byMarket[marketID] += count
}

// ReleaseOrders decrements the per-market counter after cancellations so a
// configured cap frees up. Never drops below zero.
func (p *Pool) ReleaseOrders(walletID, marketID string, count int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byMarket, ok := p.placed[walletID]
	if !ok {
		return
	}
	byMarket[marketID] -= count
	if byMarket[marketID] < 0 {
		byMarket[marketID] = 0
	}
}

// UpdateBalances replaces the wallet's balance snapshot.
func (p *Pool) UpdateBalances(walletID string, balances map[string]decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.byID[walletID]
	if !ok {
		return
	}
	w.Balances = balances
}
