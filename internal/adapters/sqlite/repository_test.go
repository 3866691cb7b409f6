package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cryptoPilot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *Repository {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "cryptopilot-test-*")
	require.NoError(t, err)

	repo, err := NewRepository(Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	})
	return repo
}

func floatp(v float64) *float64 { return &v }

func TestRepository_SaveCandle(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	candle := &domain.Candle{
		Symbol:     "BTCUSDT",
		Interval:   "1m",
		OpenTime:   time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC),
		CloseTime:  time.Date(2025, 3, 5, 12, 1, 0, 0, time.UTC),
		Open:       42000, High: 42100, Low: 41950, Close: 42050,
		Volume:     12.5,
		QuoteVol:   525000,
		TradeCount: 314,
		IsFinal:    true,
	}
	require.NoError(t, repo.SaveCandle(ctx, candle))

	var count int
	require.NoError(t, repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM market_data WHERE symbol = ?", "BTCUSDT").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRepository_SaveAndRecentDecisions(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		d := &domain.AdvisoryDecision{
			Symbol:          "ETHUSDT",
			Signal:          domain.SignalHold,
			Confidence:      domain.ConfidenceMedium,
			RiskLevel:       domain.RiskLow,
			Rationale:       "sideways market",
			PositionSizePct: 1,
			Timestamp:       base.Add(time.Duration(i) * time.Minute),
		}
		if i == 3 {
			d.Signal = domain.SignalBuy
			d.Confidence = domain.ConfidenceHigh
			d.EntryPrice = floatp(2500)
			d.StopLoss = floatp(2450)
			d.PositionSizePct = 2
		}
		id, err := repo.SaveDecision(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, id, d.ID)
		assert.Greater(t, id, int64(0))
	}

	// Decision for another symbol must not leak into the result.
	_, err := repo.SaveDecision(ctx, &domain.AdvisoryDecision{
		Symbol: "BTCUSDT", Signal: domain.SignalSell,
		Confidence: domain.ConfidenceLow, RiskLevel: domain.RiskHigh,
		PositionSizePct: 1, Timestamp: base,
	})
	require.NoError(t, err)

	decisions, err := repo.RecentDecisions(ctx, "ETHUSDT", 3)
	require.NoError(t, err)
	require.Len(t, decisions, 3)

	// Newest first.
	newest := decisions[0]
	assert.Equal(t, domain.SignalBuy, newest.Signal)
	assert.Equal(t, domain.ConfidenceHigh, newest.Confidence)
	require.NotNil(t, newest.EntryPrice)
	assert.InDelta(t, 2500, *newest.EntryPrice, 1e-9)
	require.NotNil(t, newest.StopLoss)
	assert.InDelta(t, 2450, *newest.StopLoss, 1e-9)
	assert.Nil(t, newest.TakeProfit)
	assert.InDelta(t, 2, newest.PositionSizePct, 1e-9)
	assert.Equal(t, base.Add(3*time.Minute), newest.Timestamp)

	assert.Equal(t, domain.SignalHold, decisions[1].Signal)
	assert.Equal(t, domain.SignalHold, decisions[2].Signal)
}

func TestRepository_RecentDecisionsEmpty(t *testing.T) {
	repo := setupTestDB(t)

	decisions, err := repo.RecentDecisions(context.Background(), "SOLUSDT", 10)
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestRepository_FallbackDecisionRoundTrip(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	d := domain.DefaultDecision("BTCUSDT")
	_, err := repo.SaveDecision(ctx, d)
	require.NoError(t, err)

	got, err := repo.RecentDecisions(ctx, "BTCUSDT", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Fallback)
	assert.Equal(t, domain.SignalHold, got[0].Signal)
	assert.Equal(t, domain.RiskHigh, got[0].RiskLevel)
}

func TestRepository_SaveTradeAndCountToday(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	trades := []*domain.Trade{
		{
			Symbol: "BTCUSDT", Side: domain.Buy, Type: domain.OrderTypeMarket,
			Quantity: 0.05, Price: 42000, StopLoss: floatp(41160),
			OrderID: 1001, Status: "FILLED", DecisionID: 1, ExecutedAt: now,
		},
		{
			Symbol: "BTCUSDT", Side: domain.Sell, Type: domain.OrderTypeMarket,
			Quantity: 0.05, Price: 42500,
			OrderID: 1002, Status: "FILLED", DecisionID: 2, ExecutedAt: now.Add(-time.Hour),
		},
		// Yesterday's trade must not count toward today.
		{
			Symbol: "BTCUSDT", Side: domain.Buy, Type: domain.OrderTypeMarket,
			Quantity: 0.1, Price: 41000,
			OrderID: 1003, Status: "FILLED", ExecutedAt: now.Add(-48 * time.Hour),
		},
		// Other symbol.
		{
			Symbol: "ETHUSDT", Side: domain.Buy, Type: domain.OrderTypeMarket,
			Quantity: 1, Price: 2500,
			OrderID: 1004, Status: "FILLED", ExecutedAt: now,
		},
	}
	for _, tr := range trades {
		id, err := repo.SaveTrade(ctx, tr)
		require.NoError(t, err)
		assert.Greater(t, id, int64(0))
	}

	// The -1h trade may fall on the previous UTC day close to midnight, so
	// assert a range rather than an exact count.
	count, err := repo.CountTodayBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)
	assert.LessOrEqual(t, count, 2)

	count, err = repo.CountTodayBySymbol(ctx, "SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
