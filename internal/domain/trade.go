package domain

import "time"

// Trade represents one executed trade request and the exchange's answer.
type Trade struct {
	ID         int64
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   float64
	Price      float64 // Market price at submission time
	StopLoss   *float64
	TakeProfit *float64
	OrderID    int64  // Exchange-assigned order ID
	Status     string // Exchange-reported order status (e.g., FILLED)
	DecisionID int64  // Advisory decision that produced this trade (0 if unknown)
	ExecutedAt time.Time
}
