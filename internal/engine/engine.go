// Package engine drives the periodic quoting cycle: refresh prices,
// evaluate deviation, and place two-sided quotes or corrective orders
// through the wallet pool.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"maker_go/internal/deviation"
	"maker_go/internal/domain"
	"maker_go/internal/gateway"
	"maker_go/internal/infra"
	"maker_go/internal/ledger"
	"maker_go/internal/wallet"
	"maker_go/pkg/quant"
)

// State of the engine lifecycle.
type State string

const (
	StateStopped      State = "STOPPED"
	StateInitializing State = "INITIALIZING"
	StateRunning      State = "RUNNING"
)

// ReferencePricer yields the external reference price for a symbol pair.
// false means no price could be obtained; the market is skipped this cycle.
type ReferencePricer interface {
	GetReferencePrice(ctx context.Context, base, quote string) (decimal.Decimal, bool)
}

// WalletConnector is implemented by gateways that need per-wallet session
// setup (address resolution, signer registration) before trading.
type WalletConnector interface {
	ConnectWallet(ctx context.Context, w *domain.WalletState) error
}

// Graduated correction offsets from the reference price, most aggressive
// first. Percent of reference, applied in the corrective direction.
var correctionLevelsPct = []decimal.Decimal{
	decimal.RequireFromString("2"),
	decimal.RequireFromString("1"),
	decimal.RequireFromString("0.5"),
}

// Options tune the engine. Zero SubmitDelay picks the 3s default.
type Options struct {
	SubmitDelay time.Duration
}

// PlaceResponse is the outcome of a manual order placement.
type PlaceResponse struct {
	OrderID string
	TxHash  string
}

// MarketStatus is one market's slice of the status report.
type MarketStatus struct {
	MarketID       string
	VenuePrice     decimal.Decimal
	ReferencePrice decimal.Decimal
	DeviationPct   decimal.Decimal
	RestingOrders  int
	Active         bool
}

// StatusReport is the outward status surface.
type StatusReport struct {
	State     State
	Cycles    uint64
	Markets   []MarketStatus
	Cooldowns []deviation.StateView
}

// Engine is the quoting core. One mutex serializes cycles and
// administrative calls; the cycle itself never runs concurrently with
// another cycle for the same instance.
type Engine struct {
	gw      gateway.Gateway
	oracle  ReferencePricer
	pool    *wallet.Pool
	ledger  *ledger.Ledger
	monitor *deviation.Monitor
	clock   infra.Clock

	submitDelay time.Duration
	markets     map[string]*domain.MarketConfig

	mu        sync.Mutex
	state     State
	active    []string // market ids being quoted, in start order
	snapshots map[string]*domain.MarketSnapshot
	refs      map[string]gateway.OrderRef // ledger order id -> venue ref
	cycles    uint64
}

// New wires the engine over its collaborators.
func New(gw gateway.Gateway, oracle ReferencePricer, pool *wallet.Pool, led *ledger.Ledger, monitor *deviation.Monitor, clock infra.Clock, markets []domain.MarketConfig, opts Options) *Engine {
	if opts.SubmitDelay <= 0 {
		opts.SubmitDelay = 3 * time.Second
	}
	e := &Engine{
		gw:          gw,
		oracle:      oracle,
		pool:        pool,
		ledger:      led,
		monitor:     monitor,
		clock:       clock,
		submitDelay: opts.SubmitDelay,
		markets:     make(map[string]*domain.MarketConfig, len(markets)),
		state:       StateStopped,
		snapshots:   make(map[string]*domain.MarketSnapshot),
		refs:        make(map[string]gateway.OrderRef),
	}
	for i := range markets {
		cfg := markets[i]
		e.markets[cfg.ID] = &cfg
	}
	return e
}

// Start connects wallets, zeroes per-market tracking and best-effort
// cancels pre-existing orders for the given markets. An unknown or
// disabled market, or an empty enabled-wallet set, fails the start.
func (e *Engine) Start(ctx context.Context, marketIDs []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateRunning {
		return fmt.Errorf("engine: already running")
	}
	e.state = StateInitializing

	for _, id := range marketIDs {
		cfg, ok := e.markets[id]
		if !ok {
			e.state = StateStopped
			return fmt.Errorf("engine: unknown market %s", id)
		}
		if !cfg.Enabled {
			e.state = StateStopped
			return fmt.Errorf("engine: market %s is disabled", id)
		}
	}

	connected := 0
	for _, w := range e.pool.Enabled() {
		if err := e.connectWallet(ctx, w); err != nil {
			w.Status = domain.WalletError
			slog.Error("engine: wallet setup failed",
				"wallet", w.Config.ID, "err", err)
			continue
		}
		connected++
	}
	if connected == 0 {
		e.state = StateStopped
		return fmt.Errorf("engine: no enabled wallet could be set up")
	}

	e.active = append([]string(nil), marketIDs...)
	e.snapshots = make(map[string]*domain.MarketSnapshot, len(marketIDs))
	e.refs = make(map[string]gateway.OrderRef)
	for _, id := range marketIDs {
		e.snapshots[id] = &domain.MarketSnapshot{MarketID: id}
	}

	// Stale quotes from a previous run would double up with ours.
	if err := e.cancelOpenOrdersLocked(ctx, marketIDs); err != nil {
		slog.Warn("engine: startup cancel failed", "err", err)
	}

	e.state = StateRunning
	slog.Info("engine: started", "markets", marketIDs, "wallets", connected)
	return nil
}

func (e *Engine) connectWallet(ctx context.Context, w *domain.WalletState) error {
	if c, ok := e.gw.(WalletConnector); ok {
		if err := c.ConnectWallet(ctx, w); err != nil {
			return err
		}
	}
	w.Status = domain.WalletActive
	if balances, err := e.gw.GetBalances(ctx, w); err == nil {
		e.pool.UpdateBalances(w.Config.ID, balances)
	} else {
		slog.Warn("engine: balance snapshot failed", "wallet", w.Config.ID, "err", err)
	}
	return nil
}

// Stop halts cycling. Resting orders are left on the venue on purpose so
// quotes persist across restarts.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateStopped {
		e.state = StateStopped
		slog.Info("engine: stopped", "cycles", e.cycles)
	}
}

// Execute runs one cycle over all active markets. Per-market failures are
// logged and never abort the remaining markets; only engine-level
// conditions (not running, context cancelled) return an error.
func (e *Engine) Execute(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return fmt.Errorf("engine: not running")
	}
	e.cycles++

	for _, id := range e.active {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.runMarket(ctx, e.markets[id])
	}
	return nil
}

// runMarket performs steps for one market: price refresh, deviation
// evaluation, corrective action, and quote replenishment.
func (e *Engine) runMarket(ctx context.Context, cfg *domain.MarketConfig) {
	snap := e.snapshots[cfg.ID]

	venue, ok := e.venueMid(ctx, cfg.ID)
	if !ok {
		snap.Active = false
		return
	}
	ref, ok := e.oracle.GetReferencePrice(ctx, cfg.BaseSymbol, cfg.QuoteSymbol)
	if !ok {
		slog.Warn("engine: no reference price", "market", cfg.ID)
		snap.Active = false
		return
	}

	snap.VenuePrice = venue
	snap.ReferencePrice = ref
	snap.LastUpdateUnixM = e.clock.Now().UnixMicro()
	snap.Active = true

	res, err := e.monitor.Evaluate(cfg.ID, venue, ref)
	if err != nil {
		slog.Error("engine: evaluate failed", "market", cfg.ID, "err", err)
		return
	}
	snap.DeviationPct = res.Percent

	switch {
	case res.Severity == deviation.SeverityEmergency && e.monitor.AllowEmergency(cfg.ID):
		// Emergency takes precedence; the correction path is not also
		// taken in the same cycle.
		if e.placeEmergencyOrders(ctx, cfg, res) > 0 {
			e.monitor.MarkEmergency(cfg.ID)
		}
	case res.Severity == deviation.SeverityCorrection && e.monitor.AllowCorrection(cfg.ID):
		if e.placeCorrectionOrders(ctx, cfg, res, ref) > 0 {
			e.monitor.MarkCorrection(cfg.ID)
		}
	case res.Severity == deviation.SeverityAligned:
		e.monitor.ClearCorrection(cfg.ID)
	}

	if e.ledger.RestingCount(cfg.ID) == 0 {
		e.placeQuotes(ctx, cfg, venue)
	}
}

// venueMid reads the venue book and returns the mid price.
func (e *Engine) venueMid(ctx context.Context, marketID string) (decimal.Decimal, bool) {
	book, err := e.gw.GetOrderbook(ctx, marketID, 1)
	if err != nil {
		slog.Warn("engine: venue book unavailable", "market", marketID, "err", err)
		return decimal.Zero, false
	}
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		slog.Warn("engine: venue book empty", "market", marketID)
		return decimal.Zero, false
	}
	mid, err := quant.Mid(bid, ask)
	if err != nil {
		return decimal.Zero, false
	}
	return mid, true
}

// placeEmergencyOrders submits one aggressively priced order per enabled
// wallet, sized by the market's emergency order size. Returns the number of
// orders placed; zero means the attempt failed outright and may be retried
// next cycle.
func (e *Engine) placeEmergencyOrders(ctx context.Context, cfg *domain.MarketConfig, res deviation.Result) int {
	slog.Warn("engine: emergency correction",
		"market", cfg.ID,
		"deviation_pct", res.Percent.StringFixed(2),
		"direction", string(res.Direction),
	)

	placed := 0
	for _, w := range e.pool.Enabled() {
		if !e.pool.CanPlaceOrder(w.Config.ID, cfg.ID) {
			slog.Warn("engine: wallet at order cap, skipping",
				"wallet", w.Config.ID, "market", cfg.ID)
			continue
		}
		result, err := e.gw.PlaceMarketOrder(ctx, cfg, w, res.Direction, cfg.Correction.EmergencyOrderSize)
		if err != nil || !result.Accepted {
			slog.Error("engine: emergency order failed",
				"market", cfg.ID, "wallet", w.Config.ID, "err", err)
			continue
		}
		// Track the price the gateway actually submitted, not a local
		// estimate of the emulation.
		e.track(cfg, w, res.Direction, domain.KindMarket, result.Price, cfg.Correction.EmergencyOrderSize, result)
		placed++
		if err := e.clock.Sleep(ctx, e.submitDelay); err != nil {
			return placed
		}
	}
	return placed
}

// placeCorrectionOrders submits up to three graduated limit orders per
// wallet, offset from the reference price in the corrective direction.
// The first placement failure stops further levels for this market.
// Returns the number of orders placed.
func (e *Engine) placeCorrectionOrders(ctx context.Context, cfg *domain.MarketConfig, res deviation.Result, ref decimal.Decimal) int {
	size := cfg.OrderSize.Mul(cfg.Correction.Aggressiveness)
	if cfg.Correction.MaxCorrectionSize.Sign() > 0 && size.Cmp(cfg.Correction.MaxCorrectionSize) > 0 {
		size = cfg.Correction.MaxCorrectionSize
	}

	slog.Info("engine: graduated correction",
		"market", cfg.ID,
		"deviation_pct", res.Percent.StringFixed(2),
		"direction", string(res.Direction),
	)

	placed := 0
	for _, w := range e.pool.Enabled() {
		if !e.pool.CanPlaceOrder(w.Config.ID, cfg.ID) {
			continue
		}
		for _, lvl := range correctionLevelsPct {
			pct := lvl
			if res.Direction == domain.SideBuy {
				pct = pct.Neg()
			}
			price, err := quant.QuantizeToTick(quant.ApplyPercent(ref, pct), cfg.TickSize)
			if err != nil {
				slog.Error("engine: correction price rejected",
					"market", cfg.ID, "level_pct", lvl.String(), "err", err)
				return placed
			}
			result, err := e.gw.PlaceLimitOrder(ctx, cfg, w, res.Direction, price, size)
			if err != nil || !result.Accepted {
				slog.Error("engine: correction order failed",
					"market", cfg.ID, "wallet", w.Config.ID, "err", err)
				return placed
			}
			e.track(cfg, w, res.Direction, domain.KindLimit, price, size, result)
			placed++
			if err := e.clock.Sleep(ctx, e.submitDelay); err != nil {
				return placed
			}
		}
	}
	return placed
}

// placeQuotes posts a two-sided quote around the venue mid, splitting the
// effective spread per the market's weighting policy.
func (e *Engine) placeQuotes(ctx context.Context, cfg *domain.MarketConfig, mid decimal.Decimal) {
	bidOff, askOff := splitSpread(cfg.EffectiveSpreadPct(), cfg.Weighting)

	bid, err := quant.QuantizeToTick(quant.ApplyPercent(mid, bidOff.Neg()), cfg.TickSize)
	if err != nil {
		slog.Error("engine: bid price rejected", "market", cfg.ID, "err", err)
		return
	}
	ask, err := quant.QuantizeToTick(quant.ApplyPercent(mid, askOff), cfg.TickSize)
	if err != nil {
		slog.Error("engine: ask price rejected", "market", cfg.ID, "err", err)
		return
	}

	type leg struct {
		side  domain.Side
		price decimal.Decimal
	}
	for _, l := range []leg{{domain.SideBuy, bid}, {domain.SideSell, ask}} {
		w, ok := e.selectWallet(cfg.ID)
		if !ok {
			slog.Warn("engine: no wallet available for quote", "market", cfg.ID)
			return
		}
		result, err := e.gw.PlaceLimitOrder(ctx, cfg, w, l.side, l.price, cfg.OrderSize)
		if err != nil || !result.Accepted {
			slog.Error("engine: quote leg failed",
				"market", cfg.ID, "side", string(l.side), "err", err)
			continue
		}
		e.track(cfg, w, l.side, domain.KindLimit, l.price, cfg.OrderSize, result)
		if err := e.clock.Sleep(ctx, e.submitDelay); err != nil {
			return
		}
	}
}

// splitSpread allocates the spread between bid and ask offsets. The
// prioritized side quotes tighter, attracting flow there; the total width
// is unchanged.
func splitSpread(spreadPct decimal.Decimal, w domain.QuoteWeighting) (bidOff, askOff decimal.Decimal) {
	quarter := spreadPct.Div(decimal.NewFromInt(4))
	half := spreadPct.Div(decimal.NewFromInt(2))
	switch w {
	case domain.WeightingBuyPrioritized:
		return quarter, spreadPct.Sub(quarter)
	case domain.WeightingSellPrioritized:
		return spreadPct.Sub(quarter), quarter
	default:
		return half, half
	}
}

// selectWallet picks the next round-robin wallet that can still place an
// order on the market. Bounded by pool size so a fully capped pool cannot
// spin.
func (e *Engine) selectWallet(marketID string) (*domain.WalletState, bool) {
	n := len(e.pool.Enabled())
	for i := 0; i < n; i++ {
		w, ok := e.pool.Select(marketID)
		if !ok {
			return nil, false
		}
		if e.pool.CanPlaceOrder(w.Config.ID, marketID) {
			return w, true
		}
	}
	return nil, false
}

// track records an acknowledged submission in the ledger and the wallet
// counters, and remembers the venue ref for later cancellation.
func (e *Engine) track(cfg *domain.MarketConfig, w *domain.WalletState, side domain.Side, kind domain.OrderKind, price, qty decimal.Decimal, result gateway.PlaceResult) string {
	now := e.clock.Now().UnixMicro()
	id := uuid.NewString()
	e.ledger.Record(&domain.Order{
		ID:           id,
		MarketID:     cfg.ID,
		WalletID:     w.Config.ID,
		Side:         side,
		Kind:         kind,
		Price:        price,
		Quantity:     qty,
		Status:       domain.StatusPending,
		TxHash:       result.TxHash,
		CreatedUnixM: now,
		UpdatedUnixM: now,
	})
	e.ledger.MarkOpen(id, now)
	e.refs[id] = gateway.OrderRef{
		OrderHash: result.OrderHash,
		MarketID:  cfg.ID,
		Side:      side,
		Price:     price,
		Quantity:  qty,
	}
	e.pool.RecordOrderPlaced(w.Config.ID, cfg.ID, 1, price.Mul(qty))
	return id
}

// PlaceOrder submits a manual order, honoring the request's wallet binding.
func (e *Engine) PlaceOrder(ctx context.Context, req domain.OrderRequest) (PlaceResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return PlaceResponse{}, fmt.Errorf("engine: not running")
	}
	if err := req.Validate(); err != nil {
		return PlaceResponse{}, err
	}
	cfg, ok := e.markets[req.MarketID]
	if !ok {
		return PlaceResponse{}, fmt.Errorf("engine: unknown market %s", req.MarketID)
	}

	var w *domain.WalletState
	if id, fixed := req.Wallet.WalletID(); fixed {
		ws, ok := e.pool.Get(id)
		if !ok || ws.Status == domain.WalletDisabled {
			return PlaceResponse{}, fmt.Errorf("engine: wallet %s not available", id)
		}
		if !e.pool.CanPlaceOrder(id, cfg.ID) {
			return PlaceResponse{}, fmt.Errorf("engine: wallet %s at order cap for %s", id, cfg.ID)
		}
		w = ws
	} else {
		ws, ok := e.selectWallet(cfg.ID)
		if !ok {
			return PlaceResponse{}, fmt.Errorf("engine: no wallet available")
		}
		w = ws
	}

	var (
		result gateway.PlaceResult
		err    error
		price  = req.Price
	)
	switch req.Kind {
	case domain.KindMarket:
		result, err = e.gw.PlaceMarketOrder(ctx, cfg, w, req.Side, req.Quantity)
		price = result.Price
	default:
		price, err = quant.QuantizeToTick(req.Price, cfg.TickSize)
		if err != nil {
			return PlaceResponse{}, err
		}
		result, err = e.gw.PlaceLimitOrder(ctx, cfg, w, req.Side, price, req.Quantity)
	}
	if err != nil {
		return PlaceResponse{}, err
	}
	if !result.Accepted {
		return PlaceResponse{}, fmt.Errorf("engine: order rejected: %s", result.Message)
	}

	id := e.track(cfg, w, req.Side, req.Kind, price, req.Quantity, result)
	return PlaceResponse{OrderID: id, TxHash: result.TxHash}, nil
}

// CancelOrder cancels one tracked order by ledger id.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.ledger.Get(orderID)
	if !ok {
		return fmt.Errorf("engine: unknown order %s", orderID)
	}
	if !o.IsOpen() {
		return nil
	}
	cfg, ok := e.markets[o.MarketID]
	if !ok {
		return fmt.Errorf("engine: unknown market %s", o.MarketID)
	}
	w, ok := e.pool.Get(o.WalletID)
	if !ok {
		return fmt.Errorf("engine: unknown wallet %s", o.WalletID)
	}
	ref, ok := e.refs[orderID]
	if !ok {
		return fmt.Errorf("engine: no venue ref for order %s", orderID)
	}

	if err := e.gw.CancelOrder(ctx, cfg, w, ref); err != nil {
		return err
	}
	e.ledger.MarkCancelled(orderID, e.clock.Now().UnixMicro())
	e.pool.ReleaseOrders(o.WalletID, o.MarketID, 1)
	delete(e.refs, orderID)
	return nil
}

// CancelAll cancels resting orders for one market, or for every active
// market when marketID is empty. One batch transaction per wallet per
// instrument type, bounding on-chain transactions to
// O(wallets x instrument types).
func (e *Engine) CancelAll(ctx context.Context, marketID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	targets := e.active
	if marketID != "" {
		if _, ok := e.markets[marketID]; !ok {
			return fmt.Errorf("engine: unknown market %s", marketID)
		}
		targets = []string{marketID}
	}

	return e.cancelOpenOrdersLocked(ctx, targets)
}

// cancelOpenOrdersLocked fetches each wallet's open orders across the given
// markets and issues one batch-cancel transaction per (wallet, instrument
// type), bounding on-chain transactions to O(wallets x instrument types).
// Local tracking is dropped only for orders whose batch the venue accepted;
// a rejected batch leaves its orders resting in the ledger so later cycles
// cannot quote on top of them. Caller holds the mutex.
func (e *Engine) cancelOpenOrdersLocked(ctx context.Context, marketIDs []string) error {
	var firstErr error
	for _, w := range e.pool.Enabled() {
		groups := make(map[domain.InstrumentType][]gateway.OrderRef)
		for _, id := range marketIDs {
			cfg := e.markets[id]
			refs, err := e.gw.GetOpenOrders(ctx, cfg, w)
			if err != nil {
				slog.Warn("engine: open order fetch failed",
					"market", id, "wallet", w.Config.ID, "err", err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if len(refs) > 0 {
				groups[cfg.Instrument] = append(groups[cfg.Instrument], refs...)
			}
		}

		for instrument, refs := range groups {
			if err := e.gw.BatchCancelOrders(ctx, w, refs); err != nil {
				slog.Error("engine: batch cancel failed",
					"wallet", w.Config.ID,
					"instrument", string(instrument), "err", err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			e.untrackCancelledLocked(w.Config.ID, refs)
		}
	}
	return firstErr
}

// untrackCancelledLocked marks the wallet's ledger orders on the cancelled
// markets as cancelled and releases the wallet's per-market counters.
func (e *Engine) untrackCancelledLocked(walletID string, refs []gateway.OrderRef) {
	counts := make(map[string]int)
	for _, r := range refs {
		counts[r.MarketID]++
	}

	now := e.clock.Now().UnixMicro()
	for marketID, n := range counts {
		for _, o := range e.ledger.List(ledger.Filter{MarketID: marketID, WalletID: walletID}) {
			if !o.IsOpen() {
				continue
			}
			e.ledger.MarkCancelled(o.ID, now)
			delete(e.refs, o.ID)
		}
		e.pool.ReleaseOrders(walletID, marketID, n)
	}
}

// Status reports the engine state, last snapshots and cooldown windows.
func (e *Engine) Status() StatusReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := StatusReport{
		State:     e.state,
		Cycles:    e.cycles,
		Cooldowns: e.monitor.States(),
	}
	for _, id := range e.active {
		snap := e.snapshots[id]
		report.Markets = append(report.Markets, MarketStatus{
			MarketID:       id,
			VenuePrice:     snap.VenuePrice,
			ReferencePrice: snap.ReferencePrice,
			DeviationPct:   snap.DeviationPct,
			RestingOrders:  e.ledger.RestingCount(id),
			Active:         snap.Active,
		})
	}
	return report
}
