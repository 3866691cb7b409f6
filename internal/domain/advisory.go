package domain

import "time"

// MarketSnapshot is the condensed market view handed to the advisory
// collaborator. MACDLabel is a coarse "bullish"/"bearish"/"flat" description
// rather than the raw value; the advisory reasons over labels, not floats.
type MarketSnapshot struct {
	Symbol    string
	Price     float64
	Change24h float64
	Volume    float64
	RSI       float64
	MACDLabel string
}

// ConversationTurn is one prompt/response pair exchanged with the advisory.
type ConversationTurn struct {
	Prompt   string
	Response string
}

// AdvisoryDecision is the structured output of one advisory analysis call.
// Entry/stop/take-profit are nil when the advisory omitted them.
type AdvisoryDecision struct {
	ID         int64
	Symbol     string
	Signal     Signal
	Confidence Confidence
	RiskLevel  RiskLevel
	Rationale  string
	EntryPrice *float64
	StopLoss   *float64
	TakeProfit *float64
	// PositionSizePct is the suggested position size as a percentage of
	// account value (the advisory suggests, the risk manager decides).
	PositionSizePct float64
	// Fallback marks a degraded default substituted for an unreachable or
	// malformed advisory response.
	Fallback  bool
	Timestamp time.Time
}

// DefaultDecision returns the degraded decision used when the advisory
// collaborator is unreachable or returns something unparseable: HOLD with
// low confidence and high risk, so nothing downstream will trade on it.
func DefaultDecision(symbol string) *AdvisoryDecision {
	return &AdvisoryDecision{
		Symbol:          symbol,
		Signal:          SignalHold,
		Confidence:      ConfidenceLow,
		RiskLevel:       RiskHigh,
		Rationale:       "advisory unavailable - conservative default",
		PositionSizePct: 1,
		Fallback:        true,
		Timestamp:       time.Now().UTC(),
	}
}
