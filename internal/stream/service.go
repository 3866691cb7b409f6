// Package stream runs the market data ingestion pipeline: one reconnecting
// candle feed per symbol, a bounded per-symbol cache, indicator computation
// and fan-out of market events to subscribers.
package stream

import (
	"context"
	"fmt"
	"sync"

	"cryptoPilot/internal/domain"
	"cryptoPilot/internal/indicators"
	"cryptoPilot/internal/metrics"
	"cryptoPilot/internal/ports"
)

const (
	defaultCacheSize = 500
	defaultQueueSize = 64
)

// Handler receives one market event. Handlers run sequentially on the
// symbol's pump goroutine; a slow handler delays that symbol only.
type Handler func(ev domain.MarketEvent)

// Config holds configuration for the ingestion service.
type Config struct {
	Symbols   []string
	Interval  string
	CacheSize int // candles retained per symbol, default 500
	QueueSize int // buffered events per symbol, default 64
}

// Deps holds the service's collaborators.
type Deps struct {
	Feed    ports.MarketFeed
	Candles ports.CandleRepository
	Logger  ports.Logger
	Metrics *metrics.Metrics
}

// symbolState is the per-symbol cache and delivery queue. Each symbol's
// state is touched only by its own feed and pump goroutines, plus Backfill
// before the feed starts.
type symbolState struct {
	mu      sync.Mutex
	candles []*domain.Candle
	events  chan domain.MarketEvent
}

// Service ingests candles for a set of symbols and fans out market events.
type Service struct {
	cfg     Config
	feed    ports.MarketFeed
	candles ports.CandleRepository
	logger  ports.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	handlers []Handler
	states   map[string]*symbolState
	cancel   context.CancelFunc
	running  bool
	wg       sync.WaitGroup
}

// New creates the ingestion service. Subscribe handlers before Start.
func New(cfg Config, deps Deps) (*Service, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("%w: at least one symbol is required", ports.ErrConfigurationError)
	}
	if cfg.Interval == "" {
		return nil, fmt.Errorf("%w: kline interval is required", ports.ErrConfigurationError)
	}
	if deps.Feed == nil || deps.Candles == nil || deps.Logger == nil || deps.Metrics == nil {
		return nil, fmt.Errorf("%w: feed, candle repository, logger and metrics are required", ports.ErrConfigurationError)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	states := make(map[string]*symbolState, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		states[sym] = &symbolState{
			candles: make([]*domain.Candle, 0, cfg.CacheSize),
			events:  make(chan domain.MarketEvent, cfg.QueueSize),
		}
	}

	return &Service{
		cfg:     cfg,
		feed:    deps.Feed,
		candles: deps.Candles,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		states:  states,
	}, nil
}

// Subscribe registers a handler for all symbols' market events. Must be
// called before Start.
func (s *Service) Subscribe(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Backfill seeds each symbol's cache from historical candles so indicators
// are defined from the first live event. Failures are logged per symbol and
// do not prevent startup; the cache simply warms up from the live feed.
func (s *Service) Backfill(ctx context.Context) {
	for _, sym := range s.cfg.Symbols {
		candles, err := s.feed.GetKlines(ctx, sym, s.cfg.Interval, s.cfg.CacheSize)
		if err != nil {
			s.logger.Warn(ctx, "historical backfill failed, cache will warm up live", map[string]interface{}{
				"symbol": sym, "error": err.Error(),
			})
			continue
		}
		st := s.states[sym]
		st.mu.Lock()
		st.candles = append(st.candles[:0], candles...)
		if excess := len(st.candles) - s.cfg.CacheSize; excess > 0 {
			st.candles = append(st.candles[:0:0], st.candles[excess:]...)
		}
		size := len(st.candles)
		st.mu.Unlock()
		s.logger.Info(ctx, "historical candles loaded", map[string]interface{}{"symbol": sym, "count": size})
	}
}

// Start launches the per-symbol feed and pump goroutines. It returns
// immediately; use Stop to shut the pipeline down.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("stream service already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	for _, sym := range s.cfg.Symbols {
		st := s.states[sym]

		s.wg.Add(1)
		go func(symbol string, st *symbolState) {
			defer s.wg.Done()
			s.pump(runCtx, symbol, st)
		}(sym, st)

		s.wg.Add(1)
		go func(symbol string, st *symbolState) {
			defer s.wg.Done()
			err := s.feed.StreamKlines(runCtx, symbol, s.cfg.Interval,
				func(candle *domain.Candle) { s.onCandle(runCtx, symbol, st, candle) },
				func(err error) {
					s.metrics.FeedReconnects.WithLabelValues(symbol).Inc()
					s.logger.Warn(runCtx, "market feed error, stream will reconnect", map[string]interface{}{
						"symbol": symbol, "error": err.Error(),
					})
				})
			if err != nil {
				s.logger.Error(runCtx, err, "market feed terminated", map[string]interface{}{"symbol": symbol})
			}
		}(sym, st)
	}

	s.logger.Info(ctx, "stream service started", map[string]interface{}{
		"symbols": s.cfg.Symbols, "interval": s.cfg.Interval, "cacheSize": s.cfg.CacheSize,
	})
	return nil
}

// Stop cancels all feeds and waits for the goroutines to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info(context.Background(), "stream service stopped")
}

// Cache returns a copy of the symbol's current candle cache, oldest first.
func (s *Service) Cache(symbol string) []*domain.Candle {
	st, ok := s.states[symbol]
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*domain.Candle, len(st.candles))
	copy(out, st.candles)
	return out
}

// onCandle is the per-symbol feed callback: cache, compute indicators,
// persist, enqueue. Only finalized candles enter the pipeline; intermediate
// updates for a still-open bucket would break the cache's one-candle-per-
// bucket ordering.
func (s *Service) onCandle(ctx context.Context, symbol string, st *symbolState, candle *domain.Candle) {
	if !candle.IsFinal {
		return
	}
	s.metrics.CandlesTotal.WithLabelValues(symbol).Inc()

	st.mu.Lock()
	st.candles = append(st.candles, candle)
	if excess := len(st.candles) - s.cfg.CacheSize; excess > 0 {
		st.candles = append(st.candles[:0:0], st.candles[excess:]...)
	}
	window := make([]*domain.Candle, len(st.candles))
	copy(window, st.candles)
	st.mu.Unlock()

	snapshot := indicators.Snapshot(window)

	if err := s.candles.SaveCandle(ctx, candle); err != nil {
		s.logger.Error(ctx, err, "failed to persist candle", map[string]interface{}{"symbol": symbol})
	}

	ev := domain.MarketEvent{Symbol: symbol, Candle: *candle, Indicators: snapshot}
	select {
	case st.events <- ev:
	default:
		s.metrics.EventsDropped.WithLabelValues(symbol).Inc()
		s.logger.Warn(ctx, "event queue full, dropping market event", map[string]interface{}{
			"symbol": symbol, "closeTime": candle.CloseTime,
		})
	}
}

// pump delivers queued events to every handler in order, containing handler
// panics so one faulty subscriber cannot break the others or the feed.
func (s *Service) pump(ctx context.Context, symbol string, st *symbolState) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-st.events:
			s.mu.Lock()
			handlers := s.handlers
			s.mu.Unlock()
			for i, h := range handlers {
				s.deliver(ctx, symbol, i, h, ev)
			}
		}
	}
}

func (s *Service) deliver(ctx context.Context, symbol string, idx int, h Handler, ev domain.MarketEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, fmt.Errorf("handler panic: %v", r), "market event handler panicked", map[string]interface{}{
				"symbol": symbol, "handlerIndex": idx,
			})
		}
	}()
	h(ev)
}
