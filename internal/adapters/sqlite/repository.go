// Package sqlite persists market data, advisory decisions and executed trades
// in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoPilot/internal/domain"
	"cryptoPilot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.CandleRepository, ports.DecisionRepository and
// ports.TradeRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trading.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver works best with a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS market_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		open_time TIMESTAMP NOT NULL,
		close_time TIMESTAMP NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		quote_volume REAL NOT NULL DEFAULT 0,
		trade_count INTEGER NOT NULL DEFAULT 0,
		is_final INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS ai_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		signal TEXT NOT NULL,
		confidence TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		rationale TEXT NOT NULL DEFAULT '',
		entry_price REAL DEFAULT NULL,
		stop_loss REAL DEFAULT NULL,
		take_profit REAL DEFAULT NULL,
		position_size_pct REAL NOT NULL DEFAULT 1,
		is_fallback INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		stop_loss REAL DEFAULT NULL,
		take_profit REAL DEFAULT NULL,
		order_id INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT '',
		decision_id INTEGER NOT NULL DEFAULT 0,
		executed_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_market_data_symbol_close_time ON market_data (symbol, close_time);
	CREATE INDEX IF NOT EXISTS idx_ai_decisions_symbol_created_at ON ai_decisions (symbol, created_at);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_executed_at ON trades (symbol, executed_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- CandleRepository Implementation ---

// SaveCandle persists one candle.
func (r *Repository) SaveCandle(ctx context.Context, candle *domain.Candle) error {
	const query = `
	INSERT INTO market_data (symbol, interval, open_time, close_time, open, high, low, close, volume, quote_volume, trade_count, is_final)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		candle.Symbol, candle.Interval, candle.OpenTime.UTC(), candle.CloseTime.UTC(),
		candle.Open, candle.High, candle.Low, candle.Close,
		candle.Volume, candle.QuoteVol, candle.TradeCount, candle.IsFinal)
	if err != nil {
		return fmt.Errorf("%w: failed to insert candle for symbol %s: %w", ports.ErrQueryFailed, candle.Symbol, err)
	}
	return nil
}

// --- DecisionRepository Implementation ---

// SaveDecision persists an advisory decision and returns its assigned ID.
func (r *Repository) SaveDecision(ctx context.Context, decision *domain.AdvisoryDecision) (int64, error) {
	const query = `
	INSERT INTO ai_decisions (symbol, signal, confidence, risk_level, rationale, entry_price, stop_loss, take_profit, position_size_pct, is_fallback, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		decision.Symbol, decision.Signal, decision.Confidence, decision.RiskLevel,
		decision.Rationale, nullableFloat(decision.EntryPrice), nullableFloat(decision.StopLoss),
		nullableFloat(decision.TakeProfit), decision.PositionSizePct, decision.Fallback,
		decision.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert decision for symbol %s: %w", ports.ErrQueryFailed, decision.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for decision %s: %w", decision.Symbol, err)
	}
	decision.ID = id
	r.logger.Debug(ctx, "Decision saved", map[string]interface{}{"decisionID": id, "symbol": decision.Symbol, "signal": decision.Signal})
	return id, nil
}

// RecentDecisions retrieves the most recent decisions for a symbol, newest first.
func (r *Repository) RecentDecisions(ctx context.Context, symbol string, limit int) ([]*domain.AdvisoryDecision, error) {
	const query = `
	SELECT id, symbol, signal, confidence, risk_level, rationale, entry_price, stop_loss, take_profit, position_size_pct, is_fallback, created_at
	FROM ai_decisions
	WHERE symbol = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query decisions for symbol %s: %w", ports.ErrQueryFailed, symbol, err)
	}
	defer rows.Close()

	var decisions []*domain.AdvisoryDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision row for symbol %s: %w", symbol, err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision rows for symbol %s: %w", symbol, err)
	}
	return decisions, nil
}

// --- TradeRepository Implementation ---

// SaveTrade persists a trade record and returns its assigned ID.
func (r *Repository) SaveTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (symbol, side, type, quantity, price, stop_loss, take_profit, order_id, status, decision_id, executed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.Symbol, trade.Side, trade.Type, trade.Quantity, trade.Price,
		nullableFloat(trade.StopLoss), nullableFloat(trade.TakeProfit),
		trade.OrderID, trade.Status, trade.DecisionID, trade.ExecutedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert trade for symbol %s: %w", ports.ErrQueryFailed, trade.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade saved", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "side": trade.Side})
	return id, nil
}

// CountTodayBySymbol counts trades executed since UTC midnight for a symbol.
func (r *Repository) CountTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	const query = `
	SELECT COUNT(*)
	FROM trades
	WHERE symbol = ? AND executed_at >= ?`

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var count int
	if err := r.db.QueryRowContext(ctx, query, symbol, dayStart).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: failed to count today's trades for symbol %s: %w", ports.ErrQueryFailed, symbol, err)
	}
	return count, nil
}

// --- Scan helpers ---

func scanDecision(rows *sql.Rows) (*domain.AdvisoryDecision, error) {
	var (
		d          domain.AdvisoryDecision
		entryPrice sql.NullFloat64
		stopLoss   sql.NullFloat64
		takeProfit sql.NullFloat64
	)
	err := rows.Scan(&d.ID, &d.Symbol, &d.Signal, &d.Confidence, &d.RiskLevel,
		&d.Rationale, &entryPrice, &stopLoss, &takeProfit, &d.PositionSizePct,
		&d.Fallback, &d.Timestamp)
	if err != nil {
		return nil, err
	}
	d.EntryPrice = floatPtr(entryPrice)
	d.StopLoss = floatPtr(stopLoss)
	d.TakeProfit = floatPtr(takeProfit)
	d.Timestamp = d.Timestamp.UTC()
	return &d, nil
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
