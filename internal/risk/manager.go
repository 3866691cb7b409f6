// Package risk implements the account-level risk gate: loss limits, drawdown
// tracking against the high-water mark, and position sizing. One Manager
// guards one account; all symbols share it.
package risk

import (
	"context"
	"math"
	"sync"
	"time"

	"cryptoPilot/internal/ports"
)

// Config holds the risk limits, all expressed as fractions of account value.
type Config struct {
	// TradeRisk is the fraction of account value put at risk per trade.
	TradeRisk float64
	// DailyLossLimit closes the gate when realized losses for the UTC day
	// exceed this fraction of account value.
	DailyLossLimit float64
	// WeeklyLossLimit is the same for the trading week (Monday start).
	WeeklyLossLimit float64
	// MaxDrawdown closes the gate when the decline from the high-water mark
	// exceeds this fraction of account value.
	MaxDrawdown float64
}

// MaxPositionFraction caps any single position at this fraction of account
// value regardless of stop-loss distance.
const MaxPositionFraction = 0.2

// State is a point-in-time copy of the manager's internals, exposed for
// status reporting and audit logging.
type State struct {
	AccountValue  float64
	DailyPnL      float64
	WeeklyPnL     float64
	HighWaterMark float64
	LastDayReset  time.Time
	LastWeekReset time.Time
}

// Manager tracks account equity and realized P&L and answers the single
// question the decision loop asks: can this account trade right now, and at
// what size. Mutations are serialized; multiple symbols update concurrently.
type Manager struct {
	cfg    Config
	logger ports.Logger

	mu            sync.Mutex
	accountValue  float64
	dailyPnL      float64
	weeklyPnL     float64
	highWaterMark float64
	lastDayReset  time.Time
	lastWeekReset time.Time

	now func() time.Time // overridable in tests
}

// NewManager creates a risk manager seeded with the starting account value.
func NewManager(cfg Config, accountValue float64, logger ports.Logger) *Manager {
	nowFn := func() time.Time { return time.Now().UTC() }
	start := nowFn()
	return &Manager{
		cfg:           cfg,
		logger:        logger,
		accountValue:  accountValue,
		highWaterMark: accountValue,
		lastDayReset:  start,
		lastWeekReset: start,
		now:           nowFn,
	}
}

// SetAccountValue replaces the tracked account value, e.g. after a balance
// refresh from the exchange. The high-water mark only ever rises.
func (m *Manager) SetAccountValue(ctx context.Context, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountValue = value
	if value > m.highWaterMark {
		m.highWaterMark = value
	}
	m.logger.Info(ctx, "risk: account value set", map[string]interface{}{
		"metric": "account_value", "value": value, "highWaterMark": m.highWaterMark,
	})
}

// CanTrade reports whether the account-level gate is open. It flips closed
// the instant any limit is breached and reopens only when the relevant period
// rolls over or the drawdown recovers.
func (m *Manager) CanTrade(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(ctx)

	if m.dailyPnL < -m.cfg.DailyLossLimit*m.accountValue {
		m.logger.Info(ctx, "risk: trading blocked by daily loss limit", map[string]interface{}{
			"metric": "daily_pnl", "value": m.dailyPnL, "limit": -m.cfg.DailyLossLimit * m.accountValue,
		})
		return false
	}
	if m.weeklyPnL < -m.cfg.WeeklyLossLimit*m.accountValue {
		m.logger.Info(ctx, "risk: trading blocked by weekly loss limit", map[string]interface{}{
			"metric": "weekly_pnl", "value": m.weeklyPnL, "limit": -m.cfg.WeeklyLossLimit * m.accountValue,
		})
		return false
	}
	if drawdown := m.highWaterMark - m.accountValue; drawdown > m.cfg.MaxDrawdown*m.accountValue {
		m.logger.Info(ctx, "risk: trading blocked by max drawdown", map[string]interface{}{
			"metric": "drawdown", "value": drawdown, "limit": m.cfg.MaxDrawdown * m.accountValue,
		})
		return false
	}
	return true
}

// CalculatePositionSize returns the approved position value (in quote
// currency) for a proposed stop-loss distance, expressed as a fraction of
// entry price. A zero stop-loss fraction means "do not trade" and returns 0
// rather than dividing by it.
func (m *Manager) CalculatePositionSize(ctx context.Context, stopLossFraction float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stopLossFraction <= 0 {
		m.logger.Warn(ctx, "risk: zero stop-loss fraction, position size 0", map[string]interface{}{
			"metric": "position_size", "value": 0,
		})
		return 0
	}

	size := m.accountValue * m.cfg.TradeRisk / stopLossFraction
	capped := math.Min(size, m.accountValue*MaxPositionFraction)
	m.logger.Debug(ctx, "risk: position size computed", map[string]interface{}{
		"metric": "position_size", "value": capped, "stopLossFraction": stopLossFraction,
	})
	return capped
}

// UpdateRealizedPnL applies a realized profit or loss to the account. Day and
// week rollovers are checked before the counters mutate, so a loss booked at
// 00:00:01 UTC lands in the new day.
func (m *Manager) UpdateRealizedPnL(ctx context.Context, delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(ctx)

	m.dailyPnL += delta
	m.weeklyPnL += delta
	m.accountValue += delta
	if m.accountValue > m.highWaterMark {
		m.highWaterMark = m.accountValue
	}

	m.logger.Info(ctx, "risk: realized PnL updated", map[string]interface{}{
		"metric": "realized_pnl", "value": delta,
		"dailyPnL": m.dailyPnL, "weeklyPnL": m.weeklyPnL,
		"accountValue": m.accountValue, "highWaterMark": m.highWaterMark,
	})
}

// UpdateUnrealizedPnL records a mark-to-market move for audit. It never
// mutates the loss counters or the gate.
func (m *Manager) UpdateUnrealizedPnL(ctx context.Context, delta float64) {
	m.logger.Info(ctx, "risk: unrealized PnL observed", map[string]interface{}{
		"metric": "unrealized_pnl", "value": delta,
	})
}

// Snapshot returns a copy of the current risk state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		AccountValue:  m.accountValue,
		DailyPnL:      m.dailyPnL,
		WeeklyPnL:     m.weeklyPnL,
		HighWaterMark: m.highWaterMark,
		LastDayReset:  m.lastDayReset,
		LastWeekReset: m.lastWeekReset,
	}
}

// rollover resets the daily counter on a UTC date change and the weekly
// counter when the week (Monday start) advances. Caller holds m.mu.
func (m *Manager) rollover(ctx context.Context) {
	now := m.now()

	if !sameUTCDate(now, m.lastDayReset) {
		m.logger.Info(ctx, "risk: daily counters reset", map[string]interface{}{
			"metric": "daily_pnl", "value": 0.0, "previous": m.dailyPnL,
		})
		m.dailyPnL = 0
		m.lastDayReset = now
	}

	if !weekStart(now).Equal(weekStart(m.lastWeekReset)) {
		m.logger.Info(ctx, "risk: weekly counters reset", map[string]interface{}{
			"metric": "weekly_pnl", "value": 0.0, "previous": m.weeklyPnL,
		})
		m.weeklyPnL = 0
		m.lastWeekReset = now
	}
}

func sameUTCDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// weekStart returns midnight UTC of the Monday on or before t.
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	y, mo, d := t.AddDate(0, 0, -daysSinceMonday).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
