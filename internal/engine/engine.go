// Package engine runs the per-symbol decision loop: advisory consultation,
// risk gating and order submission for every incoming market event.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"cryptoPilot/internal/domain"
	"cryptoPilot/internal/metrics"
	"cryptoPilot/internal/ports"
	"cryptoPilot/internal/risk"
)

const (
	defaultMaxDailyTrades = 5
	defaultCooldown       = 15 * time.Minute
	defaultAdvisorTimeout = 60 * time.Second
	defaultStopLossFrac   = 0.02
	historyLimit          = 10
	orderTimeout          = 30 * time.Second
	// quantityPrecision is the decimal precision orders are submitted at.
	quantityPrecision = 3
)

// Config holds the decision loop's tunables.
type Config struct {
	MaxDailyTrades          int
	Cooldown                time.Duration
	AdvisorTimeout          time.Duration
	DefaultStopLossFraction float64
	MinTradeAmount          float64 // floor on trade value in quote currency
	MaxTradeAmount          float64 // cap on trade value in quote currency
	LiveTrading             bool
}

// Deps holds the engine's collaborators.
type Deps struct {
	Advisor   ports.Advisor
	Risk      *risk.Manager
	Orders    ports.OrderClient
	Decisions ports.DecisionRepository
	Trades    ports.TradeRepository
	Logger    ports.Logger
	Metrics   *metrics.Metrics
}

// symbolState is one symbol's gate state. Guarded by its own mutex so a slow
// advisory call for one symbol never delays another symbol's loop; events for
// the same symbol serialize on it.
type symbolState struct {
	mu            sync.Mutex
	cooldownUntil time.Time
	dailyCount    int
	countDate     time.Time
	history       []domain.ConversationTurn
	lastAnalysis  *domain.AdvisoryDecision
}

// Status is a point-in-time snapshot of the engine for status consumers.
type Status struct {
	IsRunning        bool
	LastAnalysis     map[string]*domain.AdvisoryDecision
	DailyTradeCounts map[string]int
	ActiveCooldowns  map[string]time.Time
}

// Engine drives trading decisions from market events.
type Engine struct {
	cfg       Config
	advisor   ports.Advisor
	risk      *risk.Manager
	orders    ports.OrderClient
	decisions ports.DecisionRepository
	trades    ports.TradeRepository
	logger    ports.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	states  map[string]*symbolState
	running bool
	baseCtx context.Context

	now func() time.Time
}

// New creates the decision engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Advisor == nil || deps.Risk == nil || deps.Orders == nil ||
		deps.Decisions == nil || deps.Trades == nil || deps.Logger == nil || deps.Metrics == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for engine", ports.ErrConfigurationError)
	}
	if cfg.MaxDailyTrades <= 0 {
		cfg.MaxDailyTrades = defaultMaxDailyTrades
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.AdvisorTimeout <= 0 {
		cfg.AdvisorTimeout = defaultAdvisorTimeout
	}
	if cfg.DefaultStopLossFraction <= 0 {
		cfg.DefaultStopLossFraction = defaultStopLossFrac
	}
	return &Engine{
		cfg:       cfg,
		advisor:   deps.Advisor,
		risk:      deps.Risk,
		orders:    deps.Orders,
		decisions: deps.Decisions,
		trades:    deps.Trades,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		states:    make(map[string]*symbolState),
		now:       time.Now,
	}, nil
}

// Start marks the engine running. Events arriving before Start or after Stop
// are ignored.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.baseCtx = ctx
	e.running = true
	e.logger.Info(ctx, "decision engine started", map[string]interface{}{
		"liveTrading": e.cfg.LiveTrading, "maxDailyTrades": e.cfg.MaxDailyTrades,
		"cooldown": e.cfg.Cooldown.String(),
	})
}

// Stop halts processing of new events. It only flips the running flag: an
// invocation already in flight keeps its own detached context and finishes,
// so an order submission is never aborted mid-flight.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	e.logger.Info(context.Background(), "decision engine stopped")
}

// Status reports the engine's per-symbol state for status consumers.
func (e *Engine) Status() Status {
	e.mu.Lock()
	running := e.running
	states := make(map[string]*symbolState, len(e.states))
	for sym, st := range e.states {
		states[sym] = st
	}
	e.mu.Unlock()

	now := e.now()
	status := Status{
		IsRunning:        running,
		LastAnalysis:     make(map[string]*domain.AdvisoryDecision),
		DailyTradeCounts: make(map[string]int),
		ActiveCooldowns:  make(map[string]time.Time),
	}
	for sym, st := range states {
		st.mu.Lock()
		if st.lastAnalysis != nil {
			status.LastAnalysis[sym] = st.lastAnalysis
		}
		if sameUTCDate(st.countDate, now) {
			status.DailyTradeCounts[sym] = st.dailyCount
		} else {
			status.DailyTradeCounts[sym] = 0
		}
		if st.cooldownUntil.After(now) {
			status.ActiveCooldowns[sym] = st.cooldownUntil
		}
		st.mu.Unlock()
	}
	return status
}

// HandleEvent runs the gate sequence for one market event. It is safe for
// concurrent use across symbols; events for the same symbol serialize.
func (e *Engine) HandleEvent(ev domain.MarketEvent) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	// Detached from the base context's cancellation: shutdown must let an
	// invocation past the gates finish rather than abort a submitted order.
	ctx := context.WithoutCancel(e.baseCtx)
	st, ok := e.states[ev.Symbol]
	if !ok {
		st = &symbolState{}
		e.states[ev.Symbol] = st
	}
	e.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	now := e.now().UTC()
	price := ev.Candle.Close

	if now.Before(st.cooldownUntil) {
		e.metrics.GateRejections.WithLabelValues("cooldown").Inc()
		e.logger.Info(ctx, "cooldown active, skipping event", map[string]interface{}{
			"symbol": ev.Symbol, "cooldownUntil": st.cooldownUntil,
		})
		return
	}

	if !sameUTCDate(st.countDate, now) {
		st.dailyCount = 0
		st.countDate = now
	}
	if st.dailyCount >= e.cfg.MaxDailyTrades {
		e.metrics.GateRejections.WithLabelValues("daily_limit").Inc()
		e.logger.Info(ctx, "daily trade limit reached, skipping event", map[string]interface{}{
			"symbol": ev.Symbol, "dailyCount": st.dailyCount,
		})
		return
	}

	decision, turn := e.consult(ctx, ev, st.history)

	st.history = append(st.history, turn)
	if len(st.history) > historyLimit {
		st.history = st.history[len(st.history)-historyLimit:]
	}
	st.lastAnalysis = decision

	decisionID, err := e.decisions.SaveDecision(ctx, decision)
	if err != nil {
		e.logger.Error(ctx, err, "failed to persist advisory decision", map[string]interface{}{"symbol": ev.Symbol})
	}

	slFrac := e.cfg.DefaultStopLossFraction
	if decision.StopLoss != nil && price > 0 {
		slFrac = abs(price-*decision.StopLoss) / price
	}
	positionSize := e.risk.CalculatePositionSize(ctx, slFrac)
	if positionSize <= 0 {
		e.metrics.GateRejections.WithLabelValues("position_size").Inc()
		e.logger.Info(ctx, "position size is zero, skipping event", map[string]interface{}{
			"symbol": ev.Symbol, "stopLossFraction": slFrac,
		})
		return
	}
	tradeValue := clamp(positionSize, e.cfg.MinTradeAmount, e.cfg.MaxTradeAmount)

	if !e.risk.CanTrade(ctx) {
		e.metrics.GateRejections.WithLabelValues("risk_closed").Inc()
		e.logger.Info(ctx, "risk manager closed, skipping event", map[string]interface{}{"symbol": ev.Symbol})
		return
	}

	side, tradeable := decision.Signal.Side()
	switch {
	case !tradeable:
		e.metrics.GateRejections.WithLabelValues("signal_hold").Inc()
		e.logger.Info(ctx, "no actionable signal", map[string]interface{}{"symbol": ev.Symbol, "signal": decision.Signal})
		return
	case decision.Confidence != domain.ConfidenceHigh:
		e.metrics.GateRejections.WithLabelValues("low_confidence").Inc()
		e.logger.Info(ctx, "confidence below threshold", map[string]interface{}{"symbol": ev.Symbol, "confidence": decision.Confidence})
		return
	case decision.RiskLevel == domain.RiskHigh:
		e.metrics.GateRejections.WithLabelValues("high_risk").Inc()
		e.logger.Info(ctx, "advisory risk too high", map[string]interface{}{"symbol": ev.Symbol})
		return
	case !e.cfg.LiveTrading:
		e.metrics.GateRejections.WithLabelValues("live_trading_disabled").Inc()
		e.logger.Info(ctx, "live trading disabled, would have traded", map[string]interface{}{
			"symbol": ev.Symbol, "signal": decision.Signal, "tradeValue": tradeValue,
		})
		return
	}

	if price <= 0 {
		e.logger.Warn(ctx, "non-positive price, cannot compute quantity", map[string]interface{}{"symbol": ev.Symbol})
		return
	}
	quantity := tradeValue / price
	quantityStr := strconv.FormatFloat(quantity, 'f', quantityPrecision, 64)
	if rounded, _ := strconv.ParseFloat(quantityStr, 64); rounded <= 0 {
		// A high-priced symbol can round a small trade value down to zero
		// base units; the exchange would reject that order every time.
		e.metrics.GateRejections.WithLabelValues("quantity_rounds_to_zero").Inc()
		e.logger.Info(ctx, "quantity rounds to zero at order precision, skipping event", map[string]interface{}{
			"symbol": ev.Symbol, "tradeValue": tradeValue, "price": price,
		})
		return
	}

	orderCtx, cancelOrder := context.WithTimeout(ctx, orderTimeout)
	defer cancelOrder()
	order, err := e.orders.PlaceMarketOrder(orderCtx, ev.Symbol, side, quantityStr)
	if err != nil {
		e.logger.Error(ctx, err, "order placement failed, state unchanged", map[string]interface{}{
			"symbol": ev.Symbol, "side": side, "quantity": quantityStr,
		})
		return
	}

	st.dailyCount++
	st.cooldownUntil = now.Add(e.cfg.Cooldown)

	trade := &domain.Trade{
		Symbol:     ev.Symbol,
		Side:       side,
		Type:       domain.OrderTypeMarket,
		Quantity:   quantity,
		Price:      price,
		StopLoss:   decision.StopLoss,
		TakeProfit: decision.TakeProfit,
		OrderID:    order.OrderID,
		Status:     order.Status,
		DecisionID: decisionID,
		ExecutedAt: now,
	}
	if _, err := e.trades.SaveTrade(ctx, trade); err != nil {
		e.logger.Error(ctx, err, "failed to persist trade", map[string]interface{}{"symbol": ev.Symbol})
	}

	e.metrics.TradesExecuted.WithLabelValues(ev.Symbol, string(side)).Inc()
	e.logger.Warn(ctx, "TRADE EXECUTED", map[string]interface{}{
		"symbol": ev.Symbol, "side": side, "quantity": quantityStr, "price": price,
		"orderID": order.OrderID, "status": order.Status,
		"dailyCount": st.dailyCount, "cooldownUntil": st.cooldownUntil,
	})
}

// consult calls the advisory with a bounded timeout and substitutes the
// conservative default on any failure. The returned turn always carries the
// prompt so history grows even across degraded calls.
func (e *Engine) consult(ctx context.Context, ev domain.MarketEvent, history []domain.ConversationTurn) (*domain.AdvisoryDecision, domain.ConversationTurn) {
	// One deadline covers the whole consultation, the ticker lookup
	// included, so a hung exchange call cannot stall the symbol's loop.
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.AdvisorTimeout)
	defer cancel()

	change24h, err := e.orders.Get24hChange(callCtx, ev.Symbol)
	if err != nil {
		e.logger.Warn(ctx, "failed to fetch 24h change for snapshot", map[string]interface{}{
			"symbol": ev.Symbol, "error": err.Error(),
		})
		change24h = 0
	}

	snap := domain.MarketSnapshot{
		Symbol:    ev.Symbol,
		Price:     ev.Candle.Close,
		Change24h: change24h,
		Volume:    ev.Candle.Volume,
		RSI:       ev.Indicators.RSI,
		MACDLabel: ev.Indicators.MACDLabel(),
	}

	start := time.Now()
	decision, turn, err := e.advisor.Analyze(callCtx, snap, history)
	e.metrics.AdvisoryLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.AdvisoryFailures.Inc()
		e.logger.Warn(ctx, "advisory failed, using conservative default", map[string]interface{}{
			"symbol": ev.Symbol, "error": err.Error(),
		})
		return domain.DefaultDecision(ev.Symbol), turn
	}
	return decision, turn
}

func sameUTCDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// clamp bounds v to [lo, hi]; a non-positive bound is treated as unset.
func clamp(v, lo, hi float64) float64 {
	if lo > 0 && v < lo {
		v = lo
	}
	if hi > 0 && v > hi {
		v = hi
	}
	return v
}
