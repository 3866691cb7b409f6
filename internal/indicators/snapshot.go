// Package indicators provides pure technical indicator computations over a
// bounded candle history. No state is kept between calls; every snapshot is
// derived from scratch from the cache window it is given.
package indicators

import "cryptoPilot/internal/domain"

// Moving average windows reported in the snapshot.
const (
	ShortMAPeriod = 20
	LongMAPeriod  = 50
)

// Snapshot derives the full indicator set from the candle cache window.
// Candles are expected oldest first.
func Snapshot(candles []*domain.Candle) domain.IndicatorSnapshot {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return SnapshotFromCloses(closes)
}

// SnapshotFromCloses is Snapshot for callers that already hold a close series.
func SnapshotFromCloses(closes []float64) domain.IndicatorSnapshot {
	snap := domain.IndicatorSnapshot{
		RSI: RSI(closes, RSIPeriod),
	}
	snap.MACD, snap.MACDSignal, snap.HasMACD = MACD(closes)
	snap.MA20, snap.HasMA20 = SMA(closes, ShortMAPeriod)
	snap.MA50, snap.HasMA50 = SMA(closes, LongMAPeriod)
	return snap
}
