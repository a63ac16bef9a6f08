package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maker_go/internal/deviation"
	"maker_go/internal/domain"
	"maker_go/internal/gateway"
	"maker_go/internal/infra"
	"maker_go/internal/ledger"
	"maker_go/internal/wallet"
)

type stubOracle struct {
	price decimal.Decimal
	ok    bool
}

func (s *stubOracle) GetReferencePrice(context.Context, string, string) (decimal.Decimal, bool) {
	return s.price, s.ok
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testMarket() domain.MarketConfig {
	return domain.MarketConfig{
		ID:            "INJ/USDT",
		Enabled:       true,
		Instrument:    domain.InstrumentSpot,
		BaseSymbol:    "INJ",
		QuoteSymbol:   "USDT",
		BaseDecimals:  18,
		QuoteDecimals: 6,
		TickSize:      d("0.01"),
		SpreadPct:     d("1"),
		OrderSize:     d("5"),
		Weighting:     domain.WeightingBalanced,
		Correction: domain.PriceCorrectionConfig{
			Enabled:               true,
			ThresholdPct:          d("5"),
			EmergencyThresholdPct: d("20"),
			Aggressiveness:        d("1"),
			MaxCorrectionSize:     d("10"),
			EmergencyOrderSize:    d("20"),
			CooldownSec:           300,
			EmergencyCooldownSec:  600,
		},
	}
}

func testWallets(n int) []domain.WalletConfig {
	ids := []string{"w1", "w2", "w3"}
	out := make([]domain.WalletConfig, 0, n)
	for _, id := range ids[:n] {
		out = append(out, domain.WalletConfig{ID: id, Name: id, PrivateKey: "k-" + id, Enabled: true})
	}
	return out
}

// harness wires an engine over the mock gateway with a manual clock.
type harness struct {
	eng    *Engine
	gw     *gateway.MockGateway
	oracle *stubOracle
	clock  *infra.ManualClock
	led    *ledger.Ledger
	pool   *wallet.Pool
}

func newHarness(t *testing.T, wallets int, markets ...domain.MarketConfig) *harness {
	t.Helper()
	if len(markets) == 0 {
		markets = []domain.MarketConfig{testMarket()}
	}
	clock := infra.NewManualClock(time.Unix(1_700_000_000, 0))
	gw := gateway.NewMockGateway()
	oracle := &stubOracle{price: d("10"), ok: true}
	pool := wallet.NewPool(testWallets(wallets))
	led := ledger.New()
	mon := deviation.NewMonitor(clock, markets)
	eng := New(gw, oracle, pool, led, mon, clock, markets, Options{SubmitDelay: 3 * time.Second})
	return &harness{eng: eng, gw: gw, oracle: oracle, clock: clock, led: led, pool: pool}
}

func (h *harness) start(t *testing.T, marketIDs ...string) {
	t.Helper()
	if len(marketIDs) == 0 {
		marketIDs = []string{"INJ/USDT"}
	}
	require.NoError(t, h.eng.Start(context.Background(), marketIDs))
	h.gw.ResetPlaced()
}

func TestEngine_StartRejectsUnknownMarket(t *testing.T) {
	h := newHarness(t, 1)
	err := h.eng.Start(context.Background(), []string{"ATOM/USDT"})
	require.Error(t, err)
	assert.Equal(t, StateStopped, h.eng.Status().State)
}

func TestEngine_StartRejectsEmptyWalletSet(t *testing.T) {
	clock := infra.NewManualClock(time.Unix(0, 0))
	markets := []domain.MarketConfig{testMarket()}
	pool := wallet.NewPool([]domain.WalletConfig{{ID: "w1", Enabled: false}})
	eng := New(gateway.NewMockGateway(), &stubOracle{price: d("10"), ok: true}, pool,
		ledger.New(), deviation.NewMonitor(clock, markets), clock, markets, Options{})
	require.Error(t, eng.Start(context.Background(), []string{"INJ/USDT"}))
}

func TestEngine_AlignedPlacesTwoSidedQuote(t *testing.T) {
	h := newHarness(t, 2)
	h.start(t)

	// Venue mid 10.03 vs reference 10.00 is a 0.3% deviation: aligned.
	h.gw.SetBook("INJ/USDT", d("10.00"), d("10.06"))

	require.NoError(t, h.eng.Execute(context.Background()))

	placed := h.gw.Placed()
	require.Len(t, placed, 2)
	assert.Equal(t, domain.SideBuy, placed[0].Side)
	assert.Equal(t, domain.SideSell, placed[1].Side)
	// 1% spread split evenly around 10.03, quantized to the 0.01 tick.
	assert.True(t, d("9.98").Equal(placed[0].Price), "bid %s", placed[0].Price)
	assert.True(t, d("10.08").Equal(placed[1].Price), "ask %s", placed[1].Price)
	// Round-robin: the two legs go to different wallets.
	assert.NotEqual(t, placed[0].WalletID, placed[1].WalletID)
	assert.Equal(t, 2, h.led.RestingCount("INJ/USDT"))

	// Resting orders suppress further quoting.
	h.gw.ResetPlaced()
	require.NoError(t, h.eng.Execute(context.Background()))
	assert.Empty(t, h.gw.Placed())
}

func TestEngine_CorrectionGraduatedSells(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)

	// Venue mid 10.80 vs reference 10.00: 8% overvalued, corrective sells.
	h.gw.SetBook("INJ/USDT", d("10.79"), d("10.81"))

	require.NoError(t, h.eng.Execute(context.Background()))

	placed := h.gw.Placed()
	require.Len(t, placed, 3)
	want := []string{"10.2", "10.1", "10.05"}
	for i, p := range placed {
		assert.Equal(t, domain.SideSell, p.Side)
		assert.Equal(t, domain.KindLimit, p.Kind)
		assert.True(t, d(want[i]).Equal(p.Price), "level %d price %s", i, p.Price)
		// OrderSize x aggressiveness 1.
		assert.True(t, d("5").Equal(p.Quantity))
	}

	// Within the correction cooldown nothing new fires.
	h.gw.ResetPlaced()
	h.clock.Advance(60 * time.Second)
	require.NoError(t, h.eng.Execute(context.Background()))
	assert.Empty(t, h.gw.Placed())
}

func TestEngine_CorrectionGraduatedBuys(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)

	// Venue mid 9.20 vs reference 10.00: 8% undervalued, corrective buys.
	h.gw.SetBook("INJ/USDT", d("9.19"), d("9.21"))

	require.NoError(t, h.eng.Execute(context.Background()))

	placed := h.gw.Placed()
	require.Len(t, placed, 3)
	want := []string{"9.8", "9.9", "9.95"}
	for i, p := range placed {
		assert.Equal(t, domain.SideBuy, p.Side)
		assert.True(t, d(want[i]).Equal(p.Price), "level %d price %s", i, p.Price)
	}
}

func TestEngine_CorrectionSizeCapped(t *testing.T) {
	m := testMarket()
	m.Correction.Aggressiveness = d("4") // 5 x 4 = 20, capped at 10
	h := newHarness(t, 1, m)
	h.start(t)
	h.gw.SetBook("INJ/USDT", d("10.79"), d("10.81"))

	require.NoError(t, h.eng.Execute(context.Background()))

	placed := h.gw.Placed()
	require.Len(t, placed, 3)
	for _, p := range placed {
		assert.True(t, d("10").Equal(p.Quantity), "quantity %s", p.Quantity)
	}
}

func TestEngine_CorrectionFailFast(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)
	h.gw.SetBook("INJ/USDT", d("10.79"), d("10.81"))

	// First submission fails: remaining graduated levels are skipped and
	// the market falls through to a fresh two-sided quote.
	h.gw.FailNext = 1
	require.NoError(t, h.eng.Execute(context.Background()))

	placed := h.gw.Placed()
	require.Len(t, placed, 2)
	assert.Equal(t, domain.SideBuy, placed[0].Side)
	assert.Equal(t, domain.SideSell, placed[1].Side)
	for _, p := range placed {
		assert.False(t, d("10.1").Equal(p.Price), "graduated level leaked through")
	}
}

func TestEngine_EmergencyOnePerWallet(t *testing.T) {
	h := newHarness(t, 2)
	h.start(t)

	// Venue mid 13.00 vs reference 10.00: 30% deviation, emergency sells.
	h.gw.SetBook("INJ/USDT", d("12.99"), d("13.01"))

	require.NoError(t, h.eng.Execute(context.Background()))

	placed := h.gw.Placed()
	require.Len(t, placed, 2, "exactly one emergency order per enabled wallet")
	seen := map[string]bool{}
	for _, p := range placed {
		assert.Equal(t, domain.SideSell, p.Side)
		assert.Equal(t, domain.KindMarket, p.Kind)
		assert.True(t, d("20").Equal(p.Quantity), "emergency size %s", p.Quantity)
		seen[p.WalletID] = true
	}
	assert.Len(t, seen, 2)
}

func TestEngine_EmergencyCooldownSuppression(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)
	h.gw.SetBook("INJ/USDT", d("12.99"), d("13.01"))

	require.NoError(t, h.eng.Execute(context.Background()))
	require.Len(t, h.gw.Placed(), 1)

	// Same emergency condition observed again inside the 600s window.
	h.gw.ResetPlaced()
	h.clock.Advance(120 * time.Second)
	require.NoError(t, h.eng.Execute(context.Background()))
	assert.Empty(t, h.gw.Placed(), "one emergency action per cooldown window")
}

func TestEngine_EmergencyTakesPrecedenceOverCorrection(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)
	h.gw.SetBook("INJ/USDT", d("12.99"), d("13.01"))

	require.NoError(t, h.eng.Execute(context.Background()))

	for _, p := range h.gw.Placed() {
		assert.Equal(t, domain.KindMarket, p.Kind, "no graduated limit orders in an emergency cycle")
	}
	// The correction cooldown was not consumed by the emergency.
	for _, cd := range h.eng.Status().Cooldowns {
		assert.Zero(t, cd.CorrectionCooldown)
		assert.NotZero(t, cd.EmergencyCooldown)
	}
}

func TestEngine_SkipsMarketWithoutReferencePrice(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)
	h.gw.SetBook("INJ/USDT", d("10.00"), d("10.06"))
	h.oracle.ok = false

	require.NoError(t, h.eng.Execute(context.Background()))
	assert.Empty(t, h.gw.Placed())
}

func TestEngine_PlaceOrderFixedWalletCap(t *testing.T) {
	wcfg := testWallets(1)
	wcfg[0].MaxOrdersPerMarket = 1
	clock := infra.NewManualClock(time.Unix(0, 0))
	markets := []domain.MarketConfig{testMarket()}
	gw := gateway.NewMockGateway()
	pool := wallet.NewPool(wcfg)
	eng := New(gw, &stubOracle{price: d("10"), ok: true}, pool,
		ledger.New(), deviation.NewMonitor(clock, markets), clock, markets, Options{})
	require.NoError(t, eng.Start(context.Background(), []string{"INJ/USDT"}))

	req := domain.OrderRequest{
		MarketID: "INJ/USDT",
		Wallet:   domain.FixedWallet("w1"),
		Side:     domain.SideBuy,
		Kind:     domain.KindLimit,
		Price:    d("10.00"),
		Quantity: d("1"),
	}
	resp, err := eng.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.OrderID)

	_, err = eng.PlaceOrder(context.Background(), req)
	require.Error(t, err, "per-market wallet cap must reject the second order")
}

func TestEngine_CancelOrderAndCancelAll(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)

	resp, err := h.eng.PlaceOrder(context.Background(), domain.OrderRequest{
		MarketID: "INJ/USDT",
		Side:     domain.SideSell,
		Kind:     domain.KindLimit,
		Price:    d("10.50"),
		Quantity: d("1"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, h.led.RestingCount("INJ/USDT"))

	require.NoError(t, h.eng.CancelOrder(context.Background(), resp.OrderID))
	assert.Equal(t, 0, h.led.RestingCount("INJ/USDT"))
	o, ok := h.led.Get(resp.OrderID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCancelled, o.Status)

	// Quote, then wipe the market with one batch per wallet.
	h.gw.SetBook("INJ/USDT", d("10.00"), d("10.06"))
	require.NoError(t, h.eng.Execute(context.Background()))
	require.Equal(t, 2, h.led.RestingCount("INJ/USDT"))

	require.NoError(t, h.eng.CancelAll(context.Background(), "INJ/USDT"))
	assert.Equal(t, 0, h.led.RestingCount("INJ/USDT"))
}

func TestEngine_CancelAllOneBatchPerWalletAndInstrument(t *testing.T) {
	second := testMarket()
	second.ID = "ATOM/USDT"
	second.BaseSymbol = "ATOM"
	h := newHarness(t, 1, testMarket(), second)
	h.start(t, "INJ/USDT", "ATOM/USDT")

	h.gw.SetBook("INJ/USDT", d("10.00"), d("10.06"))
	h.gw.SetBook("ATOM/USDT", d("10.00"), d("10.06"))
	require.NoError(t, h.eng.Execute(context.Background()))
	require.Equal(t, 2, h.led.RestingCount("INJ/USDT"))
	require.Equal(t, 2, h.led.RestingCount("ATOM/USDT"))

	require.NoError(t, h.eng.CancelAll(context.Background(), ""))

	// Both spot markets' orders travel in one transaction for the wallet.
	assert.Equal(t, 1, h.gw.BatchCancelCalls())
	assert.Equal(t, 0, h.led.RestingCount("INJ/USDT"))
	assert.Equal(t, 0, h.led.RestingCount("ATOM/USDT"))
}

func TestEngine_CancelAllSplitsBatchesByInstrumentType(t *testing.T) {
	deriv := testMarket()
	deriv.ID = "INJ/USDT-PERP"
	deriv.Instrument = domain.InstrumentDerivative
	h := newHarness(t, 1, testMarket(), deriv)
	h.start(t, "INJ/USDT", "INJ/USDT-PERP")

	h.gw.SetBook("INJ/USDT", d("10.00"), d("10.06"))
	h.gw.SetBook("INJ/USDT-PERP", d("10.00"), d("10.06"))
	require.NoError(t, h.eng.Execute(context.Background()))

	require.NoError(t, h.eng.CancelAll(context.Background(), ""))
	assert.Equal(t, 2, h.gw.BatchCancelCalls(), "spot and derivative orders cancel in separate transactions")
}

func TestEngine_CancelAllKeepsTrackingWhenVenueRejects(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)
	h.gw.SetBook("INJ/USDT", d("10.00"), d("10.06"))
	require.NoError(t, h.eng.Execute(context.Background()))
	require.Equal(t, 2, h.led.RestingCount("INJ/USDT"))

	h.gw.FailBatchCancel = true
	require.Error(t, h.eng.CancelAll(context.Background(), "INJ/USDT"))
	assert.Equal(t, 2, h.led.RestingCount("INJ/USDT"), "rejected batch must leave orders tracked")

	// With the orders still resting locally, the next cycle must not quote
	// on top of them.
	h.gw.ResetPlaced()
	require.NoError(t, h.eng.Execute(context.Background()))
	assert.Empty(t, h.gw.Placed())

	h.gw.FailBatchCancel = false
	require.NoError(t, h.eng.CancelAll(context.Background(), "INJ/USDT"))
	assert.Equal(t, 0, h.led.RestingCount("INJ/USDT"))
}

func TestEngine_EmergencyTracksSubmittedPrice(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)
	h.gw.SetBook("INJ/USDT", d("12.99"), d("13.01"))

	require.NoError(t, h.eng.Execute(context.Background()))

	orders := h.led.List(ledger.Filter{MarketID: "INJ/USDT"})
	require.Len(t, orders, 1)
	// The gateway emulates the sell 0.2% under the best bid; the ledger
	// carries that submitted price, not an engine-side estimate.
	assert.True(t, d("12.96402").Equal(orders[0].Price), "tracked price %s", orders[0].Price)
	placed := h.gw.Placed()
	require.Len(t, placed, 1)
	assert.True(t, placed[0].Price.Equal(orders[0].Price))
}

func TestEngine_EmergencyRetriedAfterTotalFailure(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)
	h.gw.SetBook("INJ/USDT", d("12.99"), d("13.01"))

	h.gw.FailAll = true
	require.NoError(t, h.eng.Execute(context.Background()))
	require.Empty(t, h.gw.Placed())
	for _, cd := range h.eng.Status().Cooldowns {
		assert.Zero(t, cd.EmergencyCooldown, "a fully failed emergency must not consume the cooldown")
	}

	h.gw.FailAll = false
	h.clock.Advance(time.Second)
	require.NoError(t, h.eng.Execute(context.Background()))

	placed := h.gw.Placed()
	require.Len(t, placed, 1)
	assert.Equal(t, domain.KindMarket, placed[0].Kind)
}

func TestEngine_StopKeepsRestingOrders(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)
	h.gw.SetBook("INJ/USDT", d("10.00"), d("10.06"))
	require.NoError(t, h.eng.Execute(context.Background()))
	require.Equal(t, 2, h.led.RestingCount("INJ/USDT"))

	h.eng.Stop()
	assert.Equal(t, StateStopped, h.eng.Status().State)
	assert.Equal(t, 2, h.led.RestingCount("INJ/USDT"), "stop must not cancel resting quotes")
	require.Error(t, h.eng.Execute(context.Background()))
}

func TestEngine_StatusReportsSnapshots(t *testing.T) {
	h := newHarness(t, 1)
	h.start(t)
	h.gw.SetBook("INJ/USDT", d("10.00"), d("10.06"))
	require.NoError(t, h.eng.Execute(context.Background()))

	st := h.eng.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, uint64(1), st.Cycles)
	require.Len(t, st.Markets, 1)
	m := st.Markets[0]
	assert.Equal(t, "INJ/USDT", m.MarketID)
	assert.True(t, d("10.03").Equal(m.VenuePrice), "venue %s", m.VenuePrice)
	assert.True(t, d("10").Equal(m.ReferencePrice))
	assert.Equal(t, 2, m.RestingOrders)
	assert.True(t, m.Active)
}
