package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoPilot/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market Data
	TradingPairs    []string
	KlineInterval   string
	CandleCacheSize int
	ReconnectDelay  time.Duration

	// Trading Parameters
	EnableLiveTrading bool
	MaxDailyTrades    int           // Max trades per symbol per UTC day
	TradeCooldown     time.Duration // Minimum interval between trades on one symbol
	MinTradeAmount    float64       // Floor on trade value in quote currency
	MaxTradeAmount    float64       // Cap on trade value in quote currency

	// Risk Parameters (fractions of account value)
	TradeRisk       float64
	DailyLossLimit  float64
	WeeklyLossLimit float64
	MaxDrawdown     float64
	DefaultStopLoss float64 // Stop-loss fraction used when the advisory omits one

	// Advisory
	OllamaBaseURL  string
	OllamaModel    string
	AdvisorTimeout time.Duration

	// Database
	DBPath string

	// Observability
	LogLevel    logger.Level
	MetricsAddr string // Empty disables the metrics endpoint
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Market Data
	cfg.TradingPairs = splitList(getEnv("TRADING_PAIRS", "BTCUSDT,ETHUSDT,ADAUSDT"))
	if len(cfg.TradingPairs) == 0 {
		errs = append(errs, "TRADING_PAIRS must list at least one symbol")
	}
	cfg.KlineInterval = getEnv("KLINE_INTERVAL", "1m")
	if cfg.KlineInterval == "" {
		errs = append(errs, "KLINE_INTERVAL must be set")
	}

	cfg.CandleCacheSize = getEnvAsInt("CANDLE_CACHE_SIZE", 500)
	if cfg.CandleCacheSize <= 0 {
		errs = append(errs, "CANDLE_CACHE_SIZE must be positive")
	}

	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	// Trading Parameters
	cfg.EnableLiveTrading = getEnvAsBool("ENABLE_LIVE_TRADING", false)

	cfg.MaxDailyTrades, err = getEnvAsIntRequired("MAX_DAILY_TRADES", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DAILY_TRADES: %v", err))
	} else if cfg.MaxDailyTrades <= 0 {
		errs = append(errs, "MAX_DAILY_TRADES must be positive")
	}

	cooldownMinutes, err := getEnvAsIntRequired("TRADE_COOLDOWN_MINUTES", 15)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADE_COOLDOWN_MINUTES: %v", err))
	} else if cooldownMinutes <= 0 {
		errs = append(errs, "TRADE_COOLDOWN_MINUTES must be positive")
	}
	cfg.TradeCooldown = time.Duration(cooldownMinutes) * time.Minute

	cfg.MinTradeAmount, err = getEnvAsFloatRequired("MIN_TRADE_AMOUNT", 10.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_TRADE_AMOUNT: %v", err))
	} else if cfg.MinTradeAmount <= 0 {
		errs = append(errs, "MIN_TRADE_AMOUNT must be positive")
	}

	cfg.MaxTradeAmount, err = getEnvAsFloatRequired("MAX_TRADE_AMOUNT", 1000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_TRADE_AMOUNT: %v", err))
	} else if cfg.MaxTradeAmount <= 0 {
		errs = append(errs, "MAX_TRADE_AMOUNT must be positive")
	}
	if cfg.MinTradeAmount > cfg.MaxTradeAmount {
		errs = append(errs, "MIN_TRADE_AMOUNT must not exceed MAX_TRADE_AMOUNT")
	}

	// Risk Parameters
	cfg.TradeRisk, err = getEnvAsFloatRequired("TRADE_RISK", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADE_RISK: %v", err))
	} else if cfg.TradeRisk <= 0 || cfg.TradeRisk >= 1.0 {
		errs = append(errs, "TRADE_RISK must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.DailyLossLimit, err = getEnvAsFloatRequired("DAILY_LOSS_LIMIT", 0.03)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DAILY_LOSS_LIMIT: %v", err))
	} else if cfg.DailyLossLimit <= 0 || cfg.DailyLossLimit >= 1.0 {
		errs = append(errs, "DAILY_LOSS_LIMIT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.WeeklyLossLimit, err = getEnvAsFloatRequired("WEEKLY_LOSS_LIMIT", 0.08)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid WEEKLY_LOSS_LIMIT: %v", err))
	} else if cfg.WeeklyLossLimit <= 0 || cfg.WeeklyLossLimit >= 1.0 {
		errs = append(errs, "WEEKLY_LOSS_LIMIT must be between 0.0 and 1.0 (exclusive)")
	}
	if cfg.DailyLossLimit >= cfg.WeeklyLossLimit {
		errs = append(errs, "DAILY_LOSS_LIMIT must be less than WEEKLY_LOSS_LIMIT")
	}

	cfg.MaxDrawdown, err = getEnvAsFloatRequired("MAX_DRAWDOWN", 0.15)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DRAWDOWN: %v", err))
	} else if cfg.MaxDrawdown <= 0 || cfg.MaxDrawdown >= 1.0 {
		errs = append(errs, "MAX_DRAWDOWN must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.DefaultStopLoss, err = getEnvAsFloatRequired("DEFAULT_STOP_LOSS", 0.02)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_STOP_LOSS: %v", err))
	} else if cfg.DefaultStopLoss <= 0 || cfg.DefaultStopLoss >= 1.0 {
		errs = append(errs, "DEFAULT_STOP_LOSS must be between 0.0 and 1.0 (exclusive)")
	}

	// Advisory
	cfg.OllamaBaseURL = getEnv("OLLAMA_BASE_URL", "http://localhost:11434")
	if cfg.OllamaBaseURL == "" {
		errs = append(errs, "OLLAMA_BASE_URL must be set")
	}
	cfg.OllamaModel = getEnv("OLLAMA_MODEL", "llama3.1:8b-instruct-q4_0")
	if cfg.OllamaModel == "" {
		errs = append(errs, "OLLAMA_MODEL must be set")
	}

	advisorTimeoutSeconds := getEnvAsInt("ADVISOR_TIMEOUT_SECONDS", 60)
	if advisorTimeoutSeconds <= 0 {
		errs = append(errs, "ADVISOR_TIMEOUT_SECONDS must be positive")
	}
	cfg.AdvisorTimeout = time.Duration(advisorTimeoutSeconds) * time.Second

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trading.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Observability
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9120")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}
