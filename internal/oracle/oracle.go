// Package oracle supplies the externally sourced reference price used as
// ground truth for deviation detection.
package oracle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"maker_go/internal/gateway"
	"maker_go/internal/infra"
	"maker_go/pkg/quant"
)

// BookSource reads order books from the reference network instance (the
// highest-liquidity deployment of the venue).
type BookSource interface {
	GetOrderbook(ctx context.Context, marketID string, depth int) (*gateway.OrderBook, error)
}

// RefMarket maps a symbol pair to the spot market carrying it on the
// reference network, with the declared token decimals for price scaling.
type RefMarket struct {
	MarketID      string
	BaseSymbol    string
	QuoteSymbol   string
	BaseDecimals  int32
	QuoteDecimals int32
}

type cacheEntry struct {
	price   decimal.Decimal
	fetched time.Time
}

// Options tune the oracle. Zero values pick the defaults: 30s TTL, 3
// attempts, 1s starting backoff, 10s per-lookup timeout.
type Options struct {
	TTL          time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	FetchTimeout time.Duration
	// Limiter paces outbound lookups; nil picks the shared oracle limiter.
	Limiter *infra.RateLimiter
}

func (o *Options) defaults() {
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
}

// Oracle caches reference prices per symbol pair with a fixed TTL and rate
// limits outbound lookups. Failure is never fatal to callers: a miss after
// all attempts yields (zero, false), meaning "no decision possible this
// cycle".
type Oracle struct {
	source  BookSource
	clock   infra.Clock
	limiter *infra.RateLimiter
	opts    Options

	mu      sync.Mutex
	markets map[string]RefMarket // keyed by {base}_{quote}
	cache   map[string]cacheEntry
}

// New builds an oracle over the given reference markets.
func New(source BookSource, markets []RefMarket, clock infra.Clock, opts Options) *Oracle {
	opts.defaults()
	limiter := opts.Limiter
	if limiter == nil {
		limiter = infra.GetOracleLimiter()
	}
	o := &Oracle{
		source:  source,
		clock:   clock,
		limiter: limiter,
		opts:    opts,
		markets: make(map[string]RefMarket, len(markets)),
		cache:   make(map[string]cacheEntry),
	}
	for _, m := range markets {
		o.markets[pairKey(m.BaseSymbol, m.QuoteSymbol)] = m
	}
	return o
}

func pairKey(base, quote string) string {
	return base + "_" + quote
}

// GetReferencePrice returns the cached or freshly fetched reference price
// for the pair. A cache hit within the TTL answers without a network call.
func (o *Oracle) GetReferencePrice(ctx context.Context, base, quote string) (decimal.Decimal, bool) {
	key := pairKey(base, quote)

	o.mu.Lock()
	ref, known := o.markets[key]
	if entry, ok := o.cache[key]; ok && o.clock.Now().Sub(entry.fetched) < o.opts.TTL {
		o.mu.Unlock()
		return entry.price, true
	}
	o.mu.Unlock()

	if !known {
		slog.Warn("oracle: no reference market for pair", "base", base, "quote", quote)
		return decimal.Zero, false
	}

	for attempt := 0; attempt < o.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := o.clock.Sleep(ctx, infra.BackoffFrom(o.opts.BackoffBase, attempt-1)); err != nil {
				return decimal.Zero, false
			}
		}

		price, err := o.fetch(ctx, ref)
		if err == nil {
			o.mu.Lock()
			o.cache[key] = cacheEntry{price: price, fetched: o.clock.Now()}
			o.mu.Unlock()
			return price, true
		}
		slog.Warn("oracle: reference lookup failed",
			"market", ref.MarketID, "attempt", attempt+1, "err", err)

		if ctx.Err() != nil {
			return decimal.Zero, false
		}
	}
	return decimal.Zero, false
}

// fetch reads the book once and converts the mid to a quote price.
func (o *Oracle) fetch(ctx context.Context, ref RefMarket) (decimal.Decimal, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()

	book, err := o.source.GetOrderbook(ctx, ref.MarketID, 1)
	if err != nil {
		return decimal.Zero, err
	}

	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, quant.ErrNoLiquidity
	}
	mid, err := quant.Mid(bid, ask)
	if err != nil {
		return decimal.Zero, err
	}

	// Raw on-chain prices carry the token decimal exponents; scale by the
	// declared difference.
	return mid.Mul(quant.ScaleByDecimals(ref.BaseDecimals, ref.QuoteDecimals)), nil
}

// Invalidate drops a cached pair, forcing the next call to refetch.
func (o *Oracle) Invalidate(base, quote string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cache, pairKey(base, quote))
}
