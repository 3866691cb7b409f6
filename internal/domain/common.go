package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType represents the execution type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
)

// Signal is the advisory trade recommendation.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Confidence is the advisory's confidence in its own signal.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// RiskLevel is the advisory's assessment of trade risk.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// Tradeable reports whether the signal is an actionable direction.
func (s Signal) Tradeable() bool {
	return s == SignalBuy || s == SignalSell
}

// Side converts an actionable signal into an order side.
// Returns false for HOLD or unknown signals.
func (s Signal) Side() (OrderSide, bool) {
	switch s {
	case SignalBuy:
		return Buy, true
	case SignalSell:
		return Sell, true
	default:
		return "", false
	}
}
