package data

import (
	"fmt"
	"time"

	"github.com/alexherrero/sherwood/backend/models"
)

// InstrumentRepo maps instrument tokens to tradable symbols, tick/lot
// sizes, segment, and (for derivatives) expiry/strike. Rows are immutable
// once cached; a refresh replaces rather than patches.
type InstrumentRepo interface {
	Upsert(i models.Instrument) error
	Get(token int64) (*models.Instrument, error)
	GetBySymbol(tradingSymbol string) (*models.Instrument, error)
	All() ([]models.Instrument, error)
}

// SQLInstrumentRepo implements InstrumentRepo using SQLite.
type SQLInstrumentRepo struct {
	db *DB
}

// NewInstrumentRepo creates a SQL-backed instrument repository.
func NewInstrumentRepo(db *DB) *SQLInstrumentRepo {
	return &SQLInstrumentRepo{db: db}
}

func (r *SQLInstrumentRepo) Upsert(i models.Instrument) error {
	query := `
		INSERT OR REPLACE INTO instruments
			(token, tradingsymbol, exchange, segment, instrument_type, tick_size, lot_size, expiry, strike, underlying_token, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if i.CachedAt.IsZero() {
		i.CachedAt = time.Now()
	}
	_, err := r.db.Exec(query, i.Token, i.TradingSymbol, i.Exchange, i.Segment, i.InstrumentType,
		i.TickSize, i.LotSize, i.Expiry, i.Strike, i.UnderlyingToken, i.CachedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert instrument: %w", err)
	}
	return nil
}

func (r *SQLInstrumentRepo) Get(token int64) (*models.Instrument, error) {
	var i models.Instrument
	query := `
		SELECT token, tradingsymbol, exchange, segment, instrument_type, tick_size, lot_size, expiry, strike, underlying_token, cached_at
		FROM instruments WHERE token = ?
	`
	if err := r.db.Get(&i, query, token); err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	return &i, nil
}

func (r *SQLInstrumentRepo) GetBySymbol(tradingSymbol string) (*models.Instrument, error) {
	var i models.Instrument
	query := `
		SELECT token, tradingsymbol, exchange, segment, instrument_type, tick_size, lot_size, expiry, strike, underlying_token, cached_at
		FROM instruments WHERE tradingsymbol = ?
	`
	if err := r.db.Get(&i, query, tradingSymbol); err != nil {
		return nil, fmt.Errorf("failed to get instrument by symbol: %w", err)
	}
	return &i, nil
}

func (r *SQLInstrumentRepo) All() ([]models.Instrument, error) {
	var rows []models.Instrument
	query := `
		SELECT token, tradingsymbol, exchange, segment, instrument_type, tick_size, lot_size, expiry, strike, underlying_token, cached_at
		FROM instruments
	`
	if err := r.db.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	return rows, nil
}
