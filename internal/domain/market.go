package domain

import "github.com/shopspring/decimal"

// InstrumentType distinguishes spot and derivative markets. Batch
// cancellation is grouped by instrument type, one transaction per group.
type InstrumentType string

const (
	InstrumentSpot       InstrumentType = "SPOT"
	InstrumentDerivative InstrumentType = "DERIVATIVE"
)

// QuoteWeighting shifts how much of the configured spread is allocated to
// each side of a two-sided quote. The total spread width is unchanged.
type QuoteWeighting string

const (
	WeightingBalanced        QuoteWeighting = "BALANCED"
	WeightingBuyPrioritized  QuoteWeighting = "BUY_PRIORITIZED"
	WeightingSellPrioritized QuoteWeighting = "SELL_PRIORITIZED"
)

// PriceCorrectionConfig controls deviation-driven corrective trading for a
// single market. Correction and emergency cooldowns are independent timers.
type PriceCorrectionConfig struct {
	Enabled               bool
	ThresholdPct          decimal.Decimal // correction above this absolute deviation
	EmergencyThresholdPct decimal.Decimal // emergency above this, strictly > ThresholdPct
	Aggressiveness        decimal.Decimal // scales correction order size
	MaxCorrectionSize     decimal.Decimal
	EmergencyOrderSize    decimal.Decimal
	CooldownSec           int
	EmergencyCooldownSec  int
}

// MarketConfig is the static description of one quoted market.
// Immutable after load.
type MarketConfig struct {
	ID              string
	Enabled         bool
	Instrument      InstrumentType
	BaseSymbol      string
	QuoteSymbol     string
	BaseDecimals    int32
	QuoteDecimals   int32
	TickSize        decimal.Decimal
	SpreadPct       decimal.Decimal
	MinSpreadPct    decimal.Decimal
	MaxSpreadPct    decimal.Decimal
	OrderSize       decimal.Decimal
	MaxWallets      int
	OrdersPerWallet int
	Weighting       QuoteWeighting
	Correction      PriceCorrectionConfig
}

// EffectiveSpreadPct clamps the configured spread into [MinSpreadPct, MaxSpreadPct].
func (m *MarketConfig) EffectiveSpreadPct() decimal.Decimal {
	s := m.SpreadPct
	if m.MinSpreadPct.Sign() > 0 && s.Cmp(m.MinSpreadPct) < 0 {
		s = m.MinSpreadPct
	}
	if m.MaxSpreadPct.Sign() > 0 && s.Cmp(m.MaxSpreadPct) > 0 {
		s = m.MaxSpreadPct
	}
	return s
}

// MarketSnapshot holds the last observed pricing state of one market.
// Owned by the quoting engine and refreshed once per cycle.
type MarketSnapshot struct {
	MarketID        string
	VenuePrice      decimal.Decimal
	ReferencePrice  decimal.Decimal
	DeviationPct    decimal.Decimal
	LastUpdateUnixM int64 // Unix Microseconds
	Active          bool
}
