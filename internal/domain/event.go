package domain

// IndicatorSnapshot holds the technical indicators derived from a symbol's
// current candle cache. It is recomputed on every candle and never persisted
// on its own; it only travels attached to the MarketEvent that produced it.
//
// RSI is always present (neutral 50 below 15 closes). MACD and the moving
// averages carry explicit presence flags because "not enough history" must be
// distinguishable from a genuine zero.
type IndicatorSnapshot struct {
	RSI        float64
	MACD       float64
	MACDSignal float64
	HasMACD    bool
	MA20       float64
	HasMA20    bool
	MA50       float64
	HasMA50    bool
}

// MACDLabel describes the MACD state in the coarse terms the advisory
// snapshot uses.
func (s IndicatorSnapshot) MACDLabel() string {
	if !s.HasMACD {
		return "N/A"
	}
	switch {
	case s.MACD > s.MACDSignal:
		return "bullish"
	case s.MACD < s.MACDSignal:
		return "bearish"
	default:
		return "flat"
	}
}

// MarketEvent is one tick of the pipeline: a finalized candle plus the
// indicators computed from the cache window that ends with it. Passed by
// value; it has no identity beyond per-symbol arrival order.
type MarketEvent struct {
	Symbol     string
	Candle     Candle
	Indicators IndicatorSnapshot
}
