package indicators

// MACD windows. The line is EMA12 - EMA26; the signal line is the 9-period
// EMA of the MACD series.
const (
	MACDFastPeriod   = 12
	MACDSlowPeriod   = 26
	MACDSignalPeriod = 9
)

// MACD computes the MACD value and signal line over the close series.
// Both are undefined (ok == false) below MACDSlowPeriod closes.
func MACD(closes []float64) (value, signal float64, ok bool) {
	fast, okFast := emaSeries(closes, MACDFastPeriod)
	slow, okSlow := emaSeries(closes, MACDSlowPeriod)
	if !okFast || !okSlow {
		return 0, 0, false
	}

	// The MACD series starts where the slow EMA becomes defined. Align the
	// fast series to the same closes by skipping its earlier entries.
	offset := len(fast) - len(slow)
	macdSeries := make([]float64, len(slow))
	for i := range slow {
		macdSeries[i] = fast[i+offset] - slow[i]
	}

	value = macdSeries[len(macdSeries)-1]

	if sigSeries, okSig := emaSeries(macdSeries, MACDSignalPeriod); okSig {
		signal = sigSeries[len(sigSeries)-1]
	} else {
		// Fewer than 9 MACD points: fall back to their plain average.
		total := 0.0
		for _, v := range macdSeries {
			total += v
		}
		signal = total / float64(len(macdSeries))
	}

	return value, signal, true
}
