package data

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexherrero/sherwood/backend/models"
)

// SQLOptimizerStore implements risk.OptimizerStore using SQLite. Windows
// and blocks are both keyed by the OptimizerKey's string form and stored
// as JSON, matching how the optimizer's in-memory maps are already keyed.
type SQLOptimizerStore struct {
	db *DB
}

// NewOptimizerStore creates a SQL-backed optimizer state store.
func NewOptimizerStore(db *DB) *SQLOptimizerStore {
	return &SQLOptimizerStore{db: db}
}

type optimizerWindowRow struct {
	Key       string `db:"key"`
	Snapshot  string `db:"snapshot"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *SQLOptimizerStore) LoadWindows() (map[string]*models.OptimizerWindow, error) {
	var rows []optimizerWindowRow
	if err := s.db.Select(&rows, `SELECT key, snapshot, updated_at FROM optimizer_window`); err != nil {
		return nil, fmt.Errorf("failed to load optimizer windows: %w", err)
	}
	out := make(map[string]*models.OptimizerWindow, len(rows))
	for _, r := range rows {
		var w models.OptimizerWindow
		if err := json.Unmarshal([]byte(r.Snapshot), &w); err != nil {
			return nil, fmt.Errorf("failed to decode optimizer window %s: %w", r.Key, err)
		}
		out[r.Key] = &w
	}
	return out, nil
}

func (s *SQLOptimizerStore) SaveWindow(w *models.OptimizerWindow) error {
	payload, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to encode optimizer window: %w", err)
	}
	query := `
		INSERT INTO optimizer_window (key, snapshot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, w.Key.String(), string(payload), time.Now()); err != nil {
		return fmt.Errorf("failed to save optimizer window: %w", err)
	}
	return nil
}

type optimizerBlockRow struct {
	Key      string    `db:"key"`
	UntilTs  time.Time `db:"until_ts"`
	SetAtTs  time.Time `db:"set_at_ts"`
	Reason   string    `db:"reason"`
	Snapshot *string   `db:"snapshot"`
}

func (s *SQLOptimizerStore) LoadBlocks() (map[string]*models.OptimizerBlock, error) {
	var rows []optimizerBlockRow
	if err := s.db.Select(&rows, `SELECT key, until_ts, set_at_ts, reason, snapshot FROM optimizer_block`); err != nil {
		return nil, fmt.Errorf("failed to load optimizer blocks: %w", err)
	}
	out := make(map[string]*models.OptimizerBlock, len(rows))
	for _, r := range rows {
		b := &models.OptimizerBlock{UntilTs: r.UntilTs, SetAtTs: r.SetAtTs, Reason: r.Reason}
		if r.Snapshot != nil {
			_ = json.Unmarshal([]byte(*r.Snapshot), &b.Snapshot)
		}
		out[r.Key] = b
	}
	return out, nil
}

func (s *SQLOptimizerStore) SaveBlock(b *models.OptimizerBlock) error {
	var snapshot *string
	if b.Snapshot != nil {
		payload, err := json.Marshal(b.Snapshot)
		if err != nil {
			return fmt.Errorf("failed to encode optimizer block snapshot: %w", err)
		}
		s := string(payload)
		snapshot = &s
	}
	query := `
		INSERT INTO optimizer_block (key, until_ts, set_at_ts, reason, snapshot)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET until_ts = excluded.until_ts, set_at_ts = excluded.set_at_ts,
			reason = excluded.reason, snapshot = excluded.snapshot
	`
	if _, err := s.db.Exec(query, b.Key.String(), b.UntilTs, b.SetAtTs, b.Reason, snapshot); err != nil {
		return fmt.Errorf("failed to save optimizer block: %w", err)
	}
	return nil
}

func (s *SQLOptimizerStore) DeleteBlock(key string) error {
	if _, err := s.db.Exec(`DELETE FROM optimizer_block WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete optimizer block: %w", err)
	}
	return nil
}
