package quant

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoLiquidity is returned when a mid-price is requested from an
	// empty side of a book.
	ErrNoLiquidity = errors.New("quant: empty bid or ask")

	// ErrTickShift is returned when quantizing a price would move it by
	// more than one tick. Such orders must be skipped, not submitted.
	ErrTickShift = errors.New("quant: quantization shifts price by more than one tick")

	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// Mid returns the mid-price of the best bid and ask.
func Mid(bestBid, bestAsk decimal.Decimal) (decimal.Decimal, error) {
	if bestBid.IsZero() || bestAsk.IsZero() {
		return decimal.Zero, ErrNoLiquidity
	}
	return bestBid.Add(bestAsk).Div(two), nil
}

// DeviationPercent returns (venue - reference) / reference * 100.
// A positive result means the venue trades above the reference.
func DeviationPercent(venue, reference decimal.Decimal) (decimal.Decimal, error) {
	if reference.Sign() <= 0 {
		return decimal.Zero, errors.New("quant: reference price must be positive")
	}
	return venue.Sub(reference).Div(reference).Mul(hundred), nil
}

// QuantizeToTick snaps price to the nearest multiple of tick.
// The snapped price always differs from the input by less than one tick;
// if it does not (tick misconfiguration, degenerate input) ErrTickShift
// is returned and the caller must skip the order.
func QuantizeToTick(price, tick decimal.Decimal) (decimal.Decimal, error) {
	if tick.Sign() <= 0 {
		return decimal.Zero, errors.New("quant: tick size must be positive")
	}
	q := price.Div(tick).Round(0).Mul(tick)
	if q.Sub(price).Abs().Cmp(tick) > 0 {
		return decimal.Zero, ErrTickShift
	}
	return q, nil
}

// ScaleByDecimals returns 10^(baseDecimals-quoteDecimals), the factor that
// converts a raw on-chain price into a human quote price. Scaling is always
// derived from the declared token decimals of the market, never assumed.
func ScaleByDecimals(baseDecimals, quoteDecimals int32) decimal.Decimal {
	return decimal.New(1, baseDecimals-quoteDecimals)
}

// ApplyPercent returns price shifted by pct percent. Positive pct moves the
// price up, negative down.
func ApplyPercent(price, pct decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Add(pct.Div(hundred)))
}
