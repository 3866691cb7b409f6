package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cryptoPilot/config"
	"cryptoPilot/internal/adapters/binanceclient"
	"cryptoPilot/internal/adapters/logger"
	"cryptoPilot/internal/adapters/ollama"
	"cryptoPilot/internal/adapters/sqlite"
	"cryptoPilot/internal/engine"
	"cryptoPilot/internal/metrics"
	"cryptoPilot/internal/risk"
	"cryptoPilot/internal/stream"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger.WithComponent("sqlite"),
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Client (Binance Adapter)
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

	// 5. Initialize Advisory Client (Ollama Adapter)
	advisor, err := ollama.New(ollama.Config{
		BaseURL: cfg.OllamaBaseURL,
		Model:   cfg.OllamaModel,
		Timeout: cfg.AdvisorTimeout,
		Logger:  appLogger.WithComponent("ollama"),
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Ollama advisor: %v", err)
	}

	// Root context canceled on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLogger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	// 6. Synchronize exchange time and seed the account value from the
	// live balance.
	if err := binanceClient.SetServerTime(ctx); err != nil {
		log.Fatalf("FATAL: Failed to synchronize server time: %v", err)
	}
	accountValue, err := binanceClient.GetAccountBalance(ctx, "USDT")
	if err != nil {
		log.Fatalf("FATAL: Failed to read account balance: %v", err)
	}
	appLogger.Info(ctx, "Account balance loaded", map[string]interface{}{"accountValue": accountValue})

	// 7. Initialize Risk Manager
	riskMgr := risk.NewManager(risk.Config{
		TradeRisk:       cfg.TradeRisk,
		DailyLossLimit:  cfg.DailyLossLimit,
		WeeklyLossLimit: cfg.WeeklyLossLimit,
		MaxDrawdown:     cfg.MaxDrawdown,
	}, accountValue, appLogger.WithComponent("risk"))

	// 8. Initialize Metrics
	m := metrics.New()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		go func() {
			appLogger.Info(ctx, "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsAddr})
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				appLogger.Error(ctx, err, "Metrics endpoint failed")
			}
		}()
	}

	// 9. Initialize Decision Engine
	decisionEngine, err := engine.New(engine.Config{
		MaxDailyTrades:          cfg.MaxDailyTrades,
		Cooldown:                cfg.TradeCooldown,
		AdvisorTimeout:          cfg.AdvisorTimeout,
		DefaultStopLossFraction: cfg.DefaultStopLoss,
		MinTradeAmount:          cfg.MinTradeAmount,
		MaxTradeAmount:          cfg.MaxTradeAmount,
		LiveTrading:             cfg.EnableLiveTrading,
	}, engine.Deps{
		Advisor:   advisor,
		Risk:      riskMgr,
		Orders:    binanceClient,
		Decisions: repo,
		Trades:    repo,
		Logger:    appLogger.WithComponent("engine"),
		Metrics:   m,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize decision engine: %v", err)
	}

	// 10. Initialize Streaming Ingestion
	streamSvc, err := stream.New(stream.Config{
		Symbols:   cfg.TradingPairs,
		Interval:  cfg.KlineInterval,
		CacheSize: cfg.CandleCacheSize,
	}, stream.Deps{
		Feed:    binanceClient,
		Candles: repo,
		Logger:  appLogger.WithComponent("stream"),
		Metrics: m,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize stream service: %v", err)
	}
	streamSvc.Subscribe(decisionEngine.HandleEvent)

	// 11. Run
	streamSvc.Backfill(ctx)
	decisionEngine.Start(ctx)
	if err := streamSvc.Start(ctx); err != nil {
		log.Fatalf("FATAL: Failed to start stream service: %v", err)
	}
	appLogger.Info(ctx, "Trading pipeline running", map[string]interface{}{
		"pairs": cfg.TradingPairs, "liveTrading": cfg.EnableLiveTrading,
	})

	<-ctx.Done()
	streamSvc.Stop()
	decisionEngine.Stop()
	appLogger.Info(context.Background(), "Application finished gracefully.")
}
