package data

import (
	"fmt"
	"time"

	"github.com/alexherrero/sherwood/backend/models"
)

// CandleStore persists closed OHLCV candles keyed by (instrument_token,
// interval_minutes, timestamp), durable across restarts.
type CandleStore interface {
	// Upsert stores a candle, replacing any existing row for the same key.
	Upsert(c models.Candle) error

	// Range returns candles for (token, interval) within [from, to],
	// ordered by timestamp ascending.
	Range(token int64, intervalMinutes int, from, to time.Time) ([]models.Candle, error)

	// Latest returns the most recent n candles for (token, interval).
	Latest(token int64, intervalMinutes int, n int) ([]models.Candle, error)

	// Prune deletes candles older than olderThan, bounding table growth.
	Prune(olderThan time.Time) (int64, error)
}

// SQLCandleStore implements CandleStore using SQLite.
type SQLCandleStore struct {
	db *DB
}

// NewCandleStore creates a SQL-backed candle store.
func NewCandleStore(db *DB) *SQLCandleStore {
	return &SQLCandleStore{db: db}
}

func (s *SQLCandleStore) Upsert(c models.Candle) error {
	query := `
		INSERT INTO candles (instrument_token, interval_minutes, timestamp, open, high, low, close, volume, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instrument_token, interval_minutes, timestamp) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume, source = excluded.source
	`
	_, err := s.db.Exec(query, c.InstrumentToken, c.IntervalMinutes, c.Timestamp,
		c.Open, c.High, c.Low, c.Close, c.Volume, c.Source)
	if err != nil {
		return fmt.Errorf("failed to upsert candle: %w", err)
	}
	return nil
}

func (s *SQLCandleStore) Range(token int64, intervalMinutes int, from, to time.Time) ([]models.Candle, error) {
	var rows []models.Candle
	query := `
		SELECT instrument_token, interval_minutes, timestamp, open, high, low, close, volume, source
		FROM candles
		WHERE instrument_token = ? AND interval_minutes = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`
	if err := s.db.Select(&rows, query, token, intervalMinutes, from, to); err != nil {
		return nil, fmt.Errorf("failed to query candle range: %w", err)
	}
	return rows, nil
}

func (s *SQLCandleStore) Latest(token int64, intervalMinutes int, n int) ([]models.Candle, error) {
	var rows []models.Candle
	query := `
		SELECT instrument_token, interval_minutes, timestamp, open, high, low, close, volume, source
		FROM candles
		WHERE instrument_token = ? AND interval_minutes = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`
	if err := s.db.Select(&rows, query, token, intervalMinutes, n); err != nil {
		return nil, fmt.Errorf("failed to query latest candles: %w", err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (s *SQLCandleStore) Prune(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM candles WHERE timestamp < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune candles: %w", err)
	}
	return res.RowsAffected()
}
