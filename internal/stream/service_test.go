package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cryptoPilot/internal/domain"
	"cryptoPilot/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// fakeFeed lets tests drive the candle callback directly.
type fakeFeed struct {
	mu        sync.Mutex
	handlers  map[string]func(*domain.Candle)
	errFns    map[string]func(error)
	ready     chan string
	klines    map[string][]*domain.Candle
	klinesErr error
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		handlers: make(map[string]func(*domain.Candle)),
		errFns:   make(map[string]func(error)),
		ready:    make(chan string, 8),
		klines:   make(map[string][]*domain.Candle),
	}
}

func (f *fakeFeed) StreamKlines(ctx context.Context, symbol, interval string, handler func(*domain.Candle), errHandler func(err error)) error {
	f.mu.Lock()
	f.handlers[symbol] = handler
	f.errFns[symbol] = errHandler
	f.mu.Unlock()
	f.ready <- symbol
	<-ctx.Done()
	return nil
}

func (f *fakeFeed) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	if f.klinesErr != nil {
		return nil, f.klinesErr
	}
	return f.klines[symbol], nil
}

func (f *fakeFeed) emit(symbol string, c *domain.Candle) {
	f.mu.Lock()
	h := f.handlers[symbol]
	f.mu.Unlock()
	h(c)
}

func (f *fakeFeed) emitError(symbol string, err error) {
	f.mu.Lock()
	fn := f.errFns[symbol]
	f.mu.Unlock()
	fn(err)
}

func (f *fakeFeed) awaitStreams(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.ready:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for streams to open")
		}
	}
}

type fakeCandleRepo struct {
	mu    sync.Mutex
	saved []*domain.Candle
	err   error
}

func (r *fakeCandleRepo) SaveCandle(ctx context.Context, candle *domain.Candle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, candle)
	return nil
}

func (r *fakeCandleRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func candleAt(symbol string, i int, close float64) *domain.Candle {
	base := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	return &domain.Candle{
		Symbol:    symbol,
		Interval:  "1m",
		OpenTime:  base.Add(time.Duration(i) * time.Minute),
		CloseTime: base.Add(time.Duration(i+1) * time.Minute),
		Open:      close, High: close, Low: close, Close: close,
		Volume:  1,
		IsFinal: true,
	}
}

func newTestService(t *testing.T, feed *fakeFeed, repo *fakeCandleRepo, cfg Config) *Service {
	t.Helper()
	svc, err := New(cfg, Deps{
		Feed:    feed,
		Candles: repo,
		Logger:  nopLogger{},
		Metrics: metrics.New(),
	})
	require.NoError(t, err)
	return svc
}

func collectEvents(svc *Service) <-chan domain.MarketEvent {
	out := make(chan domain.MarketEvent, 128)
	svc.Subscribe(func(ev domain.MarketEvent) { out <- ev })
	return out
}

func nextEvent(t *testing.T, ch <-chan domain.MarketEvent) domain.MarketEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for market event")
		return domain.MarketEvent{}
	}
}

func TestServiceDeliversEventsWithIndicators(t *testing.T) {
	feed := newFakeFeed()
	repo := &fakeCandleRepo{}
	svc := newTestService(t, feed, repo, Config{Symbols: []string{"BTCUSDT"}, Interval: "1m"})
	events := collectEvents(svc)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()
	feed.awaitStreams(t, 1)

	for i := 0; i < 3; i++ {
		feed.emit("BTCUSDT", candleAt("BTCUSDT", i, 100+float64(i)))
	}

	ev := nextEvent(t, events)
	assert.Equal(t, "BTCUSDT", ev.Symbol)
	assert.InDelta(t, 100, ev.Candle.Close, 1e-9)
	assert.InDelta(t, 50, ev.Indicators.RSI, 1e-9) // not enough history yet
	assert.False(t, ev.Indicators.HasMACD)

	nextEvent(t, events)
	ev = nextEvent(t, events)
	assert.InDelta(t, 102, ev.Candle.Close, 1e-9)

	// Every finalized candle was persisted.
	assert.Eventually(t, func() bool { return repo.count() == 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestServiceIgnoresUnfinalizedCandles(t *testing.T) {
	feed := newFakeFeed()
	repo := &fakeCandleRepo{}
	svc := newTestService(t, feed, repo, Config{Symbols: []string{"BTCUSDT"}, Interval: "1m"})
	events := collectEvents(svc)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()
	feed.awaitStreams(t, 1)

	open := candleAt("BTCUSDT", 0, 100)
	open.IsFinal = false
	feed.emit("BTCUSDT", open)
	feed.emit("BTCUSDT", candleAt("BTCUSDT", 0, 101))

	ev := nextEvent(t, events)
	assert.InDelta(t, 101, ev.Candle.Close, 1e-9)
	assert.Len(t, svc.Cache("BTCUSDT"), 1)
}

func TestServiceCacheIsBounded(t *testing.T) {
	feed := newFakeFeed()
	repo := &fakeCandleRepo{}
	svc := newTestService(t, feed, repo, Config{
		Symbols: []string{"BTCUSDT"}, Interval: "1m", CacheSize: 5, QueueSize: 64,
	})

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()
	feed.awaitStreams(t, 1)

	for i := 0; i < 12; i++ {
		feed.emit("BTCUSDT", candleAt("BTCUSDT", i, 100+float64(i)))
	}

	cache := svc.Cache("BTCUSDT")
	require.Len(t, cache, 5)
	// Oldest evicted: the cache holds the last five closes.
	assert.InDelta(t, 107, cache[0].Close, 1e-9)
	assert.InDelta(t, 111, cache[4].Close, 1e-9)
}

func TestServiceBackfillSeedsCache(t *testing.T) {
	feed := newFakeFeed()
	for i := 0; i < 8; i++ {
		feed.klines["ETHUSDT"] = append(feed.klines["ETHUSDT"], candleAt("ETHUSDT", i, 2500+float64(i)))
	}
	repo := &fakeCandleRepo{}
	svc := newTestService(t, feed, repo, Config{
		Symbols: []string{"ETHUSDT"}, Interval: "1m", CacheSize: 5,
	})

	svc.Backfill(context.Background())
	cache := svc.Cache("ETHUSDT")
	require.Len(t, cache, 5)
	assert.InDelta(t, 2503, cache[0].Close, 1e-9)
	assert.InDelta(t, 2507, cache[4].Close, 1e-9)
}

func TestServiceBackfillFailureIsNonFatal(t *testing.T) {
	feed := newFakeFeed()
	feed.klinesErr = errors.New("exchange down")
	svc := newTestService(t, feed, &fakeCandleRepo{}, Config{Symbols: []string{"ETHUSDT"}, Interval: "1m"})

	svc.Backfill(context.Background())
	assert.Empty(t, svc.Cache("ETHUSDT"))
}

func TestServiceSymbolIsolation(t *testing.T) {
	feed := newFakeFeed()
	repo := &fakeCandleRepo{}
	svc := newTestService(t, feed, repo, Config{Symbols: []string{"BTCUSDT", "ETHUSDT"}, Interval: "1m"})
	events := collectEvents(svc)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()
	feed.awaitStreams(t, 2)

	feed.emit("BTCUSDT", candleAt("BTCUSDT", 0, 100))
	feed.emitError("ETHUSDT", errors.New("decode failure"))
	feed.emit("ETHUSDT", candleAt("ETHUSDT", 0, 2500))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		ev := nextEvent(t, events)
		seen[ev.Symbol] = true
	}
	assert.True(t, seen["BTCUSDT"])
	assert.True(t, seen["ETHUSDT"])

	assert.Len(t, svc.Cache("BTCUSDT"), 1)
	assert.Len(t, svc.Cache("ETHUSDT"), 1)
}

func TestServicePanickingHandlerIsContained(t *testing.T) {
	feed := newFakeFeed()
	repo := &fakeCandleRepo{}
	svc := newTestService(t, feed, repo, Config{Symbols: []string{"BTCUSDT"}, Interval: "1m"})

	svc.Subscribe(func(ev domain.MarketEvent) { panic("bad subscriber") })
	events := collectEvents(svc)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()
	feed.awaitStreams(t, 1)

	feed.emit("BTCUSDT", candleAt("BTCUSDT", 0, 100))
	feed.emit("BTCUSDT", candleAt("BTCUSDT", 1, 101))

	// The healthy subscriber still receives both events.
	assert.InDelta(t, 100, nextEvent(t, events).Candle.Close, 1e-9)
	assert.InDelta(t, 101, nextEvent(t, events).Candle.Close, 1e-9)
}

func TestServicePersistenceFailureDoesNotStopPipeline(t *testing.T) {
	feed := newFakeFeed()
	repo := &fakeCandleRepo{err: errors.New("disk full")}
	svc := newTestService(t, feed, repo, Config{Symbols: []string{"BTCUSDT"}, Interval: "1m"})
	events := collectEvents(svc)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()
	feed.awaitStreams(t, 1)

	feed.emit("BTCUSDT", candleAt("BTCUSDT", 0, 100))
	ev := nextEvent(t, events)
	assert.Equal(t, "BTCUSDT", ev.Symbol)
}

func TestServiceStartValidation(t *testing.T) {
	feed := newFakeFeed()
	svc := newTestService(t, feed, &fakeCandleRepo{}, Config{Symbols: []string{"BTCUSDT"}, Interval: "1m"})

	require.NoError(t, svc.Start(context.Background()))
	assert.Error(t, svc.Start(context.Background()))
	svc.Stop()
}
