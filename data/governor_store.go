package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alexherrero/sherwood/backend/models"
)

// SQLGovernorStore implements risk.GovernorStore using SQLite. Each day's
// state is stored as one JSON snapshot keyed by day_key: the map/slice
// fields on GovernorState have no stable relational shape worth
// normalizing for a single-row-per-day read/write pattern.
type SQLGovernorStore struct {
	db *DB
}

// NewGovernorStore creates a SQL-backed governor state store.
func NewGovernorStore(db *DB) *SQLGovernorStore {
	return &SQLGovernorStore{db: db}
}

// LoadGovernorState returns nil, nil if no row exists for dayKey yet.
func (s *SQLGovernorStore) LoadGovernorState(dayKey string) (*models.GovernorState, error) {
	var snapshot string
	err := s.db.Get(&snapshot, `SELECT snapshot FROM governor_state WHERE day_key = ?`, dayKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load governor state: %w", err)
	}
	var state models.GovernorState
	if err := json.Unmarshal([]byte(snapshot), &state); err != nil {
		return nil, fmt.Errorf("failed to decode governor state: %w", err)
	}
	return &state, nil
}

func (s *SQLGovernorStore) SaveGovernorState(state *models.GovernorState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode governor state: %w", err)
	}
	query := `
		INSERT INTO governor_state (day_key, snapshot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(day_key) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, state.DayKey, string(payload), time.Now()); err != nil {
		return fmt.Errorf("failed to save governor state: %w", err)
	}
	return nil
}
