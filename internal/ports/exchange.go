package ports

import (
	"context"
	"time"

	"cryptoPilot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID     int64     // Exchange's order ID
	Symbol      string    // Symbol for the order
	AvgPrice    float64   // Average filled price (may be 0 immediately after submission)
	ExecutedQty float64   // Quantity filled
	Status      string    // Order status (e.g., NEW, FILLED, CANCELED)
	Type        string    // Order type (e.g., MARKET)
	Side        string    // Order side (BUY, SELL)
	Timestamp   time.Time // Time the order response was generated
}

// MarketFeed streams live candle data from an exchange.
type MarketFeed interface {
	// StreamKlines opens one logical candle stream for the symbol and blocks
	// until ctx is canceled, reconnecting internally on disconnects. Every
	// finalized or in-progress candle is passed to handler; transient stream
	// errors go to errHandler and never end the stream.
	StreamKlines(ctx context.Context, symbol, interval string, handler func(candle *domain.Candle), errHandler func(err error)) error

	// GetKlines retrieves historical candles for the given symbol, oldest first.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)
}

// OrderClient places orders and reads account state on an exchange.
type OrderClient interface {
	// PlaceMarketOrder submits a market order for the given quantity.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// GetAccountBalance retrieves the wallet balance for a specific asset (e.g., "USDT").
	GetAccountBalance(ctx context.Context, asset string) (float64, error)

	// Get24hChange retrieves the 24-hour price change percentage for a symbol.
	Get24hChange(ctx context.Context, symbol string) (float64, error)
}
