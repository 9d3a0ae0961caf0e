// Package data provides database connection and OHLCV storage.
package data

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the sqlx database connection.
type DB struct {
	*sqlx.DB
}

// NewDB creates a new database connection.
//
// Args:
//   - databasePath: Path to the SQLite database file
//
// Returns:
//   - *DB: Database wrapper
//   - error: Any error encountered
func NewDB(databasePath string) (*DB, error) {
	// Ensure the data directory exists
	dir := filepath.Dir(databasePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().Str("path", databasePath).Msg("Connected to database")

	wrapper := &DB{db}
	if err := wrapper.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return wrapper, nil
}

// Migrate runs database migrations to ensure schema is up to date.
//
// Returns:
//   - error: Any error encountered during migration
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ohlcv (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		UNIQUE(symbol, timestamp)
	);

	CREATE INDEX IF NOT EXISTS idx_ohlcv_symbol ON ohlcv(symbol);
	CREATE INDEX IF NOT EXISTS idx_ohlcv_timestamp ON ohlcv(timestamp);

	CREATE TABLE IF NOT EXISTS tickers (
		symbol TEXT PRIMARY KEY,
		name TEXT,
		asset_type TEXT,
		exchange TEXT
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		status TEXT NOT NULL,
		filled_quantity REAL DEFAULT 0,
		average_price REAL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fills (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		executed_at DATETIME NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders(id)
	);

	CREATE TABLE IF NOT EXISTS positions (
		symbol TEXT PRIMARY KEY,
		quantity REAL NOT NULL,
		average_cost REAL NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS candles (
		instrument_token INTEGER NOT NULL,
		interval_minutes INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		source TEXT NOT NULL,
		UNIQUE(instrument_token, interval_minutes, timestamp)
	);

	CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles(instrument_token, interval_minutes, timestamp);

	CREATE TABLE IF NOT EXISTS instruments (
		token INTEGER PRIMARY KEY,
		tradingsymbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		segment TEXT NOT NULL,
		instrument_type TEXT NOT NULL,
		tick_size REAL NOT NULL,
		lot_size REAL NOT NULL,
		expiry DATETIME,
		strike REAL,
		underlying_token INTEGER,
		cached_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_instruments_symbol ON instruments(tradingsymbol);

	CREATE TABLE IF NOT EXISTS managed_trades (
		trade_id TEXT PRIMARY KEY,
		side TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		instrument_token INTEGER NOT NULL,
		tradingsymbol TEXT NOT NULL,
		status TEXT NOT NULL,
		requested_qty REAL NOT NULL,
		filled_qty REAL NOT NULL,
		entry_price REAL NOT NULL,
		initial_stop_loss REAL NOT NULL,
		stop_loss REAL NOT NULL,
		target_price REAL,
		rr REAL NOT NULL,
		risk_inr REAL NOT NULL,
		peak_ltp REAL NOT NULL,
		peak_pnl_inr REAL NOT NULL,
		be_locked BOOLEAN NOT NULL DEFAULT 0,
		be_armed_at DATETIME,
		trail_locked BOOLEAN NOT NULL DEFAULT 0,
		trail_armed_at DATETIME,
		time_stop_triggered BOOLEAN NOT NULL DEFAULT 0,
		time_stop_triggered_at DATETIME,
		profit_lock_armed_at DATETIME,
		profit_lock_inr REAL,
		profit_lock_r REAL,
		underlying_entry_price REAL,
		entry_order_id TEXT,
		stop_order_id TEXT,
		target_order_id TEXT,
		created_at DATETIME NOT NULL,
		entry_placed_at DATETIME,
		entry_filled_at DATETIME,
		updated_at DATETIME NOT NULL,
		closed_at DATETIME,
		realized_gross_pnl TEXT NOT NULL DEFAULT '0',
		realized_cost_pnl TEXT NOT NULL DEFAULT '0',
		realized_net_pnl TEXT NOT NULL DEFAULT '0',
		execution_model_snapshot TEXT,
		option_type TEXT,
		option_strike REAL,
		option_expiry DATETIME,
		option_underlying_token INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_managed_trades_status ON managed_trades(status);
	CREATE INDEX IF NOT EXISTS idx_managed_trades_instrument ON managed_trades(instrument_token);

	CREATE TABLE IF NOT EXISTS governor_state (
		day_key TEXT PRIMARY KEY,
		snapshot TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS optimizer_window (
		key TEXT PRIMARY KEY,
		snapshot TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS optimizer_block (
		key TEXT PRIMARY KEY,
		until_ts DATETIME NOT NULL,
		set_at_ts DATETIME NOT NULL,
		reason TEXT NOT NULL,
		snapshot TEXT
	);

	CREATE TABLE IF NOT EXISTS telemetry (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		day_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_telemetry_day ON telemetry(day_key);

	CREATE TABLE IF NOT EXISTS order_links (
		order_id TEXT PRIMARY KEY,
		trade_id TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_order_links_trade ON order_links(trade_id);

	CREATE TABLE IF NOT EXISTS backtest_runs (
		run_id TEXT PRIMARY KEY,
		run_at DATETIME NOT NULL,
		instrument_token INTEGER NOT NULL,
		interval_minutes INTEGER NOT NULL,
		range_start DATETIME NOT NULL,
		range_end DATETIME NOT NULL,
		seed INTEGER NOT NULL,
		config_snapshot TEXT NOT NULL,
		params TEXT NOT NULL,
		metrics TEXT NOT NULL,
		trades TEXT NOT NULL,
		analytics TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT 0,
		metadata TEXT
	);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Info().Msg("Database migrations complete")
	return nil
}

// SaveOHLCV stores OHLCV data in the database.
//
// Args:
//   - data: Slice of OHLCV records to store
//
// Returns:
//   - error: Any error encountered
func (db *DB) SaveOHLCV(data []models.OHLCV) error {
	query := `
		INSERT OR REPLACE INTO ohlcv (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, d := range data {
		_, err := tx.Exec(query, d.Symbol, d.Timestamp, d.Open, d.High, d.Low, d.Close, d.Volume)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert OHLCV: %w", err)
		}
	}

	return tx.Commit()
}

// GetOHLCV retrieves OHLCV data from the database.
//
// Args:
//   - symbol: Ticker symbol
//   - start: Start of date range
//   - end: End of date range
//
// Returns:
//   - []models.OHLCV: Historical data
//   - error: Any error encountered
func (db *DB) GetOHLCV(symbol string, start, end time.Time) ([]models.OHLCV, error) {
	var data []models.OHLCV
	query := `
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM ohlcv
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`
	err := db.Select(&data, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query OHLCV: %w", err)
	}
	return data, nil
}
