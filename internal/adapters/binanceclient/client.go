// Package binanceclient adapts the go-binance futures client to the core's
// MarketFeed and OrderClient ports.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cryptoPilot/internal/domain"
	"cryptoPilot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements ports.MarketFeed and ports.OrderClient using go-binance.
type Client struct {
	futuresClient  *futures.Client
	logger         ports.Logger
	reconnectDelay time.Duration
}

// Config holds configuration specific to the Binance adapter.
type Config struct {
	APIKey         string
	SecretKey      string
	UseTestnet     bool
	Logger         ports.Logger
	ReconnectDelay time.Duration // fixed delay between stream reconnect attempts
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty, only public endpoints will work")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	return &Client{
		futuresClient:  client,
		logger:         cfg.Logger,
		reconnectDelay: delay,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		var mappedErr error
		switch apiErr.Code {
		case -1003:
			mappedErr = ports.ErrRateLimited
		case -1021:
			mappedErr = ports.ErrTimeout
		case -1022:
			mappedErr = ports.ErrAuthenticationFailed
		case -2010, -2022:
			mappedErr = ports.ErrOrderPlacementFailed
		case -2014, -2015:
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019, -3005, -3041:
			mappedErr = ports.ErrInsufficientFunds
		case -4003, -4014, -1111, -1117:
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, operation+" failed with API error", fields)
		return finalErr
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, operation+" failed", fields)
	return finalErr
}

// SetServerTime synchronizes the client's time with the exchange's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	if _, err := c.futuresClient.NewSetServerTimeService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetAccountBalance retrieves the wallet balance for a specific asset (e.g., "USDT").
func (c *Client) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	op := "GetAccountBalance"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Assets {
		if bal.Asset == asset {
			balance, err := strconv.ParseFloat(bal.WalletBalance, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.WalletBalance, asset, err)
				return 0, c.handleError(ctx, parseErr, op)
			}
			return balance, nil
		}
	}

	return 0, c.handleError(ctx, fmt.Errorf("asset %s not found in account balance", asset), op)
}

// Get24hChange retrieves the 24-hour price change percentage for a symbol.
func (c *Client) Get24hChange(ctx context.Context, symbol string) (float64, error) {
	op := "Get24hChange"
	stats, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(stats) == 0 {
		return 0, c.handleError(ctx, fmt.Errorf("no ticker data returned for symbol %s", symbol), op)
	}

	change, err := strconv.ParseFloat(stats[0].PriceChangePercent, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse change '%s': %w", stats[0].PriceChangePercent, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return change, nil
}

// PlaceMarketOrder submits a market order for the given quantity.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "side": side, "quantity": quantity,
		"orderID": resp.OrderID, "status": resp.Status,
	})
	return resp, nil
}

// GetKlines retrieves historical candles for the given symbol, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	op := "GetKlines"
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]*domain.Candle, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		candle, err := translateRESTKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// StreamKlines opens a candle stream for one symbol and blocks until ctx is
// canceled. On disconnect or a failed connection attempt it waits a fixed
// delay and resubscribes; stream failures never end the loop, only ctx does.
func (c *Client) StreamKlines(ctx context.Context, symbol, interval string, handler func(candle *domain.Candle), errHandler func(err error)) error {
	op := "StreamKlines"

	wsHandler := func(event *futures.WsKlineEvent) {
		candle, err := translateWsKline(event)
		if err != nil {
			// Translation failures are local decode problems, not stream
			// failures; log and keep reading.
			c.logger.Error(ctx, err, op+": failed to translate kline event", map[string]interface{}{"symbol": symbol})
			return
		}
		handler(candle)
	}
	wsErrHandler := func(err error) {
		errHandler(c.handleError(ctx, err, op+" websocket"))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		doneCh, stopCh, err := futures.WsKlineServe(symbol, interval, wsHandler, wsErrHandler)
		if err != nil {
			errHandler(c.handleError(ctx, err, op+" connect"))
			if !c.sleep(ctx) {
				return nil
			}
			continue
		}
		c.logger.Info(ctx, op+": connected", map[string]interface{}{"symbol": symbol, "interval": interval})

		select {
		case <-doneCh:
			c.logger.Warn(ctx, op+": connection closed, reconnecting", map[string]interface{}{
				"symbol": symbol, "delay": c.reconnectDelay.String(),
			})
			if !c.sleep(ctx) {
				return nil
			}
		case <-ctx.Done():
			select {
			case stopCh <- struct{}{}:
			default:
			}
			return nil
		}
	}
}

// sleep waits the fixed reconnect delay; returns false if ctx ended first.
func (c *Client) sleep(ctx context.Context) bool {
	select {
	case <-time.After(c.reconnectDelay):
		return true
	case <-ctx.Done():
		return false
	}
}

// --- Translation helpers ---

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &ports.OrderResponse{
		OrderID:     order.OrderID,
		Symbol:      order.Symbol,
		AvgPrice:    avgPrice,
		ExecutedQty: execQty,
		Status:      string(order.Status),
		Type:        string(order.Type),
		Side:        string(order.Side),
		Timestamp:   time.UnixMilli(order.UpdateTime),
	}
}

func translateWsKline(event *futures.WsKlineEvent) (*domain.Candle, error) {
	if event == nil {
		return nil, errors.New("received nil kline event")
	}
	k := event.Kline

	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}
	quoteVol, _ := strconv.ParseFloat(k.QuoteVolume, 64)

	return &domain.Candle{
		Symbol:     k.Symbol,
		Interval:   k.Interval,
		OpenTime:   time.UnixMilli(k.StartTime),
		CloseTime:  time.UnixMilli(k.EndTime),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      cls,
		Volume:     vol,
		QuoteVol:   quoteVol,
		TradeCount: k.TradeNum,
		IsFinal:    k.IsFinal,
	}, nil
}

func translateRESTKline(bk *futures.Kline, symbol, interval string) (*domain.Candle, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}
	quoteVol, _ := strconv.ParseFloat(bk.QuoteAssetVolume, 64)

	return &domain.Candle{
		Symbol:     symbol,
		Interval:   interval,
		OpenTime:   time.UnixMilli(bk.OpenTime),
		CloseTime:  time.UnixMilli(bk.CloseTime),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      cls,
		Volume:     vol,
		QuoteVol:   quoteVol,
		TradeCount: bk.TradeNum,
		IsFinal:    true,
	}, nil
}
