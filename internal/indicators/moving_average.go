package indicators

// SMA computes the simple moving average of the most recent `period` values.
// Returns false when there is not enough history.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	total := 0.0
	for i := len(values) - period; i < len(values); i++ {
		total += values[i]
	}
	return total / float64(period), true
}

// EMA computes the exponential moving average of the series, seeded with the
// SMA of the first `period` values. Returns false when there is not enough
// history.
func EMA(values []float64, period int) (float64, bool) {
	series, ok := emaSeries(values, period)
	if !ok {
		return 0, false
	}
	return series[len(series)-1], true
}

// emaSeries returns the EMA at every index from period-1 onward, so
// series[i] is the EMA of values[:period+i]. The first element is the seed SMA.
func emaSeries(values []float64, period int) ([]float64, bool) {
	if period <= 0 || len(values) < period {
		return nil, false
	}

	seed, _ := SMA(values[:period], period)
	multiplier := 2.0 / float64(period+1)

	series := make([]float64, 0, len(values)-period+1)
	series = append(series, seed)
	ema := seed
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		series = append(series, ema)
	}
	return series, true
}
