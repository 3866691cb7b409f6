package domain

import "time"

// Candle represents a single OHLCV sample for a symbol and interval.
type Candle struct {
	Symbol     string    // Trading symbol
	Interval   string    // Candle interval (e.g., "1m", "1h")
	OpenTime   time.Time // Start time of the interval
	CloseTime  time.Time // End time of the interval
	Open       float64   // Opening price
	High       float64   // Highest price
	Low        float64   // Lowest price
	Close      float64   // Closing price
	Volume     float64   // Base asset volume
	QuoteVol   float64   // Quote asset volume
	TradeCount int64     // Number of trades in the interval
	IsFinal    bool      // Whether this candle is the final one for the interval
}
