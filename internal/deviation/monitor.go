// Package deviation classifies the gap between the venue price and the
// reference price, and gates corrective actions behind per-market,
// per-severity cooldown windows.
package deviation

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
	"maker_go/internal/infra"
	"maker_go/pkg/quant"
)

// Severity of a price deviation.
type Severity int

const (
	SeverityAligned Severity = iota
	SeverityCorrection
	SeverityEmergency
)

func (s Severity) String() string {
	switch s {
	case SeverityAligned:
		return "ALIGNED"
	case SeverityCorrection:
		return "CORRECTION"
	case SeverityEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// Result of one evaluation.
type Result struct {
	Percent  decimal.Decimal
	Severity Severity
	// Direction is the corrective side: SELL when the venue is overvalued
	// (push the price down), BUY when undervalued.
	Direction domain.Side
}

// state tracks one market's cooldown timers. Correction and emergency
// timers are independent: one firing never resets the other.
type state struct {
	lastPercent      decimal.Decimal
	correctionActive bool
	correctionStart  time.Time
	lastCorrection   time.Time
	lastEmergency    time.Time
}

// StateView is the read-only cooldown state exposed for status reporting.
type StateView struct {
	MarketID            string
	LastPercent         decimal.Decimal
	CorrectionActive    bool
	CorrectionCooldown  time.Duration // remaining, 0 when elapsed
	EmergencyCooldown   time.Duration
	LastCorrectionUnixM int64
	LastEmergencyUnixM  int64
}

// Monitor evaluates deviations for the configured markets. All timestamps
// come from one injected monotonic clock; wall-clock adjustments cannot
// skew the cooldown windows.
type Monitor struct {
	clock   infra.Clock
	mu      sync.Mutex
	markets map[string]*domain.MarketConfig
	states  map[string]*state
}

// NewMonitor precreates deviation state for every configured market.
func NewMonitor(clock infra.Clock, markets []domain.MarketConfig) *Monitor {
	m := &Monitor{
		clock:   clock,
		markets: make(map[string]*domain.MarketConfig, len(markets)),
		states:  make(map[string]*state, len(markets)),
	}
	for i := range markets {
		cfg := markets[i]
		m.markets[cfg.ID] = &cfg
		m.states[cfg.ID] = &state{}
	}
	return m
}

// Evaluate computes the deviation percent and classifies it against the
// market's thresholds. Emergency implies the correction condition is also
// true; classification picks the stricter tier.
func (m *Monitor) Evaluate(marketID string, venue, reference decimal.Decimal) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.markets[marketID]
	if !ok {
		return Result{}, fmt.Errorf("deviation: unknown market %s", marketID)
	}
	st := m.states[marketID]

	pct, err := quant.DeviationPercent(venue, reference)
	if err != nil {
		return Result{}, err
	}
	st.lastPercent = pct

	res := Result{Percent: pct, Severity: SeverityAligned, Direction: domain.SideBuy}
	if venue.Cmp(reference) > 0 {
		res.Direction = domain.SideSell
	}

	if !cfg.Correction.Enabled {
		return res, nil
	}

	abs := pct.Abs()
	switch {
	case abs.Cmp(cfg.Correction.EmergencyThresholdPct) > 0:
		res.Severity = SeverityEmergency
	case abs.Cmp(cfg.Correction.ThresholdPct) > 0:
		res.Severity = SeverityCorrection
	}
	return res, nil
}

// AllowCorrection reports whether the market's correction cooldown has
// elapsed.
func (m *Monitor) AllowCorrection(marketID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.markets[marketID]
	if !ok {
		return false
	}
	st := m.states[marketID]
	if st.lastCorrection.IsZero() {
		return true
	}
	return m.clock.Now().Sub(st.lastCorrection) > time.Duration(cfg.Correction.CooldownSec)*time.Second
}

// MarkCorrection stamps the correction cooldown. The correction-active
// flag can only be set once the market is out of its own cooldown, which
// AllowCorrection has established.
func (m *Monitor) MarkCorrection(marketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[marketID]
	if !ok {
		return
	}
	now := m.clock.Now()
	if !st.correctionActive {
		st.correctionActive = true
		st.correctionStart = now
	}
	st.lastCorrection = now
}

// ClearCorrection resets the correction-active flag once the market has
// realigned.
func (m *Monitor) ClearCorrection(marketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[marketID]; ok {
		st.correctionActive = false
	}
}

// AllowEmergency reports whether the market's emergency cooldown has
// elapsed. Independent of the correction cooldown.
func (m *Monitor) AllowEmergency(marketID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.markets[marketID]
	if !ok {
		return false
	}
	st := m.states[marketID]
	if st.lastEmergency.IsZero() {
		return true
	}
	return m.clock.Now().Sub(st.lastEmergency) > time.Duration(cfg.Correction.EmergencyCooldownSec)*time.Second
}

// MarkEmergency stamps the emergency cooldown.
func (m *Monitor) MarkEmergency(marketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[marketID]; ok {
		st.lastEmergency = m.clock.Now()
	}
}

// States returns a snapshot of the cooldown state per market.
func (m *Monitor) States() []StateView {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	out := make([]StateView, 0, len(m.states))
	for id, st := range m.states {
		cfg := m.markets[id]
		view := StateView{
			MarketID:         id,
			LastPercent:      st.lastPercent,
			CorrectionActive: st.correctionActive,
		}
		if !st.lastCorrection.IsZero() {
			view.LastCorrectionUnixM = st.lastCorrection.UnixMicro()
			view.CorrectionCooldown = remaining(now, st.lastCorrection, cfg.Correction.CooldownSec)
		}
		if !st.lastEmergency.IsZero() {
			view.LastEmergencyUnixM = st.lastEmergency.UnixMicro()
			view.EmergencyCooldown = remaining(now, st.lastEmergency, cfg.Correction.EmergencyCooldownSec)
		}
		out = append(out, view)
	}
	return out
}

func remaining(now, last time.Time, cooldownSec int) time.Duration {
	left := time.Duration(cooldownSec)*time.Second - now.Sub(last)
	if left < 0 {
		return 0
	}
	return left
}
