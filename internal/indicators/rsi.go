package indicators

// RSIPeriod is the default lookback for the Relative Strength Index.
const RSIPeriod = 14

// NeutralRSI is reported while there is not enough history for a real value.
const NeutralRSI = 50.0

// RSI computes the Relative Strength Index over the most recent `period`
// deltas of the close series: average gain / average loss, RSI = 100 - 100/(1+RS).
// With no losses in the window the RSI saturates at 100. Below period+1 closes
// there are not enough deltas, and the neutral default is returned.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return NeutralRSI
	}

	window := closes[len(closes)-period-1:]
	var avgGain, avgLoss float64
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))

	// Clamp against floating point drift at the extremes.
	if rsi > 100 {
		rsi = 100
	} else if rsi < 0 {
		rsi = 0
	}
	return rsi
}
