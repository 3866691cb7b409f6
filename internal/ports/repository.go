package ports

import (
	"context"

	"cryptoPilot/internal/domain"
)

// CandleRepository stores raw market data as it arrives from the feed.
type CandleRepository interface {
	// SaveCandle persists one candle. Callers treat this as fire-and-forget:
	// a storage failure is logged, never propagated into the pipeline.
	SaveCandle(ctx context.Context, candle *domain.Candle) error
}

// DecisionRepository stores every advisory decision for audit, whether or not
// a trade followed it.
type DecisionRepository interface {
	// SaveDecision persists a decision and returns its assigned ID.
	SaveDecision(ctx context.Context, decision *domain.AdvisoryDecision) (int64, error)
	// RecentDecisions retrieves the most recent decisions for a symbol, newest first.
	RecentDecisions(ctx context.Context, symbol string, limit int) ([]*domain.AdvisoryDecision, error)
}

// TradeRepository stores executed trades.
type TradeRepository interface {
	// SaveTrade persists a trade record and returns its assigned ID.
	SaveTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// CountTodayBySymbol counts trades executed today (UTC) for a symbol.
	CountTodayBySymbol(ctx context.Context, symbol string) (int, error)
}
