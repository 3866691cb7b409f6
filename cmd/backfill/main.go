// Command backfill fetches historical candles for the configured trading
// pairs and stores them in the local database, so the main process starts
// with warm indicator windows and the audit trail has price history.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"cryptoPilot/config"
	"cryptoPilot/internal/adapters/binanceclient"
	"cryptoPilot/internal/adapters/logger"
	"cryptoPilot/internal/adapters/sqlite"
	"cryptoPilot/internal/utils"
)

func main() {
	limit := flag.Int("limit", 500, "number of candles to fetch per symbol")
	csvDir := flag.String("csv-dir", "", "also write fetched candles to CSV files in this directory")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:         cfg.APIKey,
		SecretKey:      cfg.SecretKey,
		UseTestnet:     cfg.IsTestnet,
		Logger:         appLogger.WithComponent("binance"),
		ReconnectDelay: cfg.ReconnectDelay,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 4. Initialize Repository
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger.WithComponent("sqlite"),
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	for _, symbol := range cfg.TradingPairs {
		candles, err := binanceClient.GetKlines(ctx, symbol, cfg.KlineInterval, *limit)
		if err != nil {
			appLogger.Error(ctx, err, "Failed to fetch candles", map[string]interface{}{"symbol": symbol})
			continue
		}
		saved := 0
		for _, c := range candles {
			if err := repo.SaveCandle(ctx, c); err != nil {
				appLogger.Error(ctx, err, "Failed to save candle", map[string]interface{}{"symbol": symbol})
				continue
			}
			saved++
		}
		if *csvDir != "" {
			filename := fmt.Sprintf("%s/%s_%s.csv", *csvDir, symbol, cfg.KlineInterval)
			if err := utils.WriteCandlesToCSV(candles, filename); err != nil {
				appLogger.Error(ctx, err, "Failed to write CSV", map[string]interface{}{"filename": filename})
			} else {
				appLogger.Info(ctx, "CSV written", map[string]interface{}{"filename": filename})
			}
		}

		appLogger.Info(ctx, "Backfill complete for symbol", map[string]interface{}{
			"symbol": symbol, "interval": cfg.KlineInterval, "fetched": len(candles), "saved": saved,
		})
	}
}
