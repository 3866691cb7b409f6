package ports

import (
	"context"

	"cryptoPilot/internal/domain"
)

// Advisor is the external reasoning service supplying trade recommendations.
// Analyze must either return a structured decision or a distinguishable error;
// callers substitute a conservative default on error rather than propagating.
type Advisor interface {
	// Analyze requests a trade recommendation for the snapshot, with up to the
	// caller's retained conversation history for context. The returned turn
	// carries the prompt sent and the raw response text (empty on transport
	// failure) so callers can extend the history even when parsing failed.
	Analyze(ctx context.Context, snap domain.MarketSnapshot, history []domain.ConversationTurn) (*domain.AdvisoryDecision, domain.ConversationTurn, error)
}
