package data

import (
	"fmt"
	"time"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/shopspring/decimal"
)

// TradeStore owns managed Trade aggregates by TradeID; orders and
// positions reference a trade by id, never by pointer.
type TradeStore interface {
	Save(t models.Trade) error
	Get(tradeID string) (*models.Trade, error)
	Open() ([]models.Trade, error)
	All() ([]models.Trade, error)
}

// SQLTradeStore implements TradeStore using SQLite.
type SQLTradeStore struct {
	db *DB
}

// NewTradeStore creates a SQL-backed trade store.
func NewTradeStore(db *DB) *SQLTradeStore {
	return &SQLTradeStore{db: db}
}

func (s *SQLTradeStore) Save(t models.Trade) error {
	query := `
		INSERT OR REPLACE INTO managed_trades (
			trade_id, side, strategy_id, instrument_token, tradingsymbol, status,
			requested_qty, filled_qty, entry_price, initial_stop_loss, stop_loss, target_price,
			rr, risk_inr, peak_ltp, peak_pnl_inr,
			be_locked, be_armed_at, trail_locked, trail_armed_at,
			time_stop_triggered, time_stop_triggered_at,
			profit_lock_armed_at, profit_lock_inr, profit_lock_r,
			underlying_entry_price, entry_order_id, stop_order_id, target_order_id,
			created_at, entry_placed_at, entry_filled_at, updated_at, closed_at,
			realized_gross_pnl, realized_cost_pnl, realized_net_pnl, execution_model_snapshot,
			option_type, option_strike, option_expiry, option_underlying_token
		) VALUES (
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?,
			?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?
		)
	`
	var optType, optExpiry, optUnderlying, optStrike interface{}
	if t.Option != nil {
		optType = t.Option.OptionType
		optStrike = t.Option.Strike
		optExpiry = t.Option.Expiry
		optUnderlying = t.Option.UnderlyingToken
	}
	_, err := s.db.Exec(query,
		t.TradeID, t.Side, t.StrategyID, t.InstrumentToken, t.TradingSymbol, t.Status,
		t.RequestedQty, t.FilledQty, t.EntryPrice, t.InitialStopLoss, t.StopLoss, t.TargetPrice,
		t.RR, t.RiskInr, t.PeakLtp, t.PeakPnlInr,
		t.BELocked, t.BEArmedAt, t.TrailLocked, t.TrailArmedAt,
		t.TimeStopTriggered, t.TimeStopTriggeredAt,
		t.ProfitLockArmedAt, t.ProfitLockInr, t.ProfitLockR,
		t.UnderlyingEntryPrice, t.EntryOrderID, t.StopOrderID, t.TargetOrderID,
		t.CreatedAt, t.EntryPlacedAt, t.EntryFilledAt, t.UpdatedAt, t.ClosedAt,
		t.RealizedGrossPnl.String(), t.RealizedCostPnl.String(), t.RealizedNetPnl.String(), t.ExecutionModelSnapshot,
		optType, optStrike, optExpiry, optUnderlying,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// tradeRow is the flat SQL projection of a Trade. It intentionally does
// not embed models.Trade: the decimal and option fields need different
// wire types than their domain-model counterparts, and a shared db tag on
// both an embedded and a top-level field would be ambiguous to sqlx.
type tradeRow struct {
	TradeID         string     `db:"trade_id"`
	Side            string     `db:"side"`
	StrategyID      string     `db:"strategy_id"`
	InstrumentToken int64      `db:"instrument_token"`
	TradingSymbol   string     `db:"tradingsymbol"`
	Status          string     `db:"status"`
	RequestedQty    float64    `db:"requested_qty"`
	FilledQty       float64    `db:"filled_qty"`
	EntryPrice      float64    `db:"entry_price"`
	InitialStopLoss float64    `db:"initial_stop_loss"`
	StopLoss        float64    `db:"stop_loss"`
	TargetPrice     float64    `db:"target_price"`
	RR              float64    `db:"rr"`
	RiskInr         float64    `db:"risk_inr"`
	PeakLtp         float64    `db:"peak_ltp"`
	PeakPnlInr      float64    `db:"peak_pnl_inr"`

	BELocked     bool       `db:"be_locked"`
	BEArmedAt    *time.Time `db:"be_armed_at"`
	TrailLocked  bool       `db:"trail_locked"`
	TrailArmedAt *time.Time `db:"trail_armed_at"`

	TimeStopTriggered   bool       `db:"time_stop_triggered"`
	TimeStopTriggeredAt *time.Time `db:"time_stop_triggered_at"`

	ProfitLockArmedAt *time.Time `db:"profit_lock_armed_at"`
	ProfitLockInr     float64    `db:"profit_lock_inr"`
	ProfitLockR       float64    `db:"profit_lock_r"`

	UnderlyingEntryPrice float64 `db:"underlying_entry_price"`
	EntryOrderID         string  `db:"entry_order_id"`
	StopOrderID          string  `db:"stop_order_id"`
	TargetOrderID        string  `db:"target_order_id"`

	CreatedAt     time.Time  `db:"created_at"`
	EntryPlacedAt *time.Time `db:"entry_placed_at"`
	EntryFilledAt *time.Time `db:"entry_filled_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	ClosedAt      *time.Time `db:"closed_at"`

	RealizedGrossPnl       string `db:"realized_gross_pnl"`
	RealizedCostPnl        string `db:"realized_cost_pnl"`
	RealizedNetPnl         string `db:"realized_net_pnl"`
	ExecutionModelSnapshot string `db:"execution_model_snapshot"`

	OptionType   *string  `db:"option_type"`
	OptionStrike *float64 `db:"option_strike"`
}

func (r tradeRow) toTrade() models.Trade {
	t := models.Trade{
		TradeID:              r.TradeID,
		Side:                 models.OrderSide(r.Side),
		StrategyID:           r.StrategyID,
		InstrumentToken:      r.InstrumentToken,
		TradingSymbol:        r.TradingSymbol,
		Status:               models.TradeStatus(r.Status),
		RequestedQty:         r.RequestedQty,
		FilledQty:            r.FilledQty,
		EntryPrice:           r.EntryPrice,
		InitialStopLoss:      r.InitialStopLoss,
		StopLoss:             r.StopLoss,
		TargetPrice:          r.TargetPrice,
		RR:                   r.RR,
		RiskInr:              r.RiskInr,
		PeakLtp:              r.PeakLtp,
		PeakPnlInr:           r.PeakPnlInr,
		BELocked:             r.BELocked,
		TrailLocked:          r.TrailLocked,
		TimeStopTriggered:    r.TimeStopTriggered,
		ProfitLockInr:        r.ProfitLockInr,
		ProfitLockR:          r.ProfitLockR,
		UnderlyingEntryPrice: r.UnderlyingEntryPrice,
		EntryOrderID:         r.EntryOrderID,
		StopOrderID:          r.StopOrderID,
		TargetOrderID:        r.TargetOrderID,
		CreatedAt:            r.CreatedAt,
		EntryPlacedAt:        r.EntryPlacedAt,
		EntryFilledAt:        r.EntryFilledAt,
		UpdatedAt:            r.UpdatedAt,
		ClosedAt:             r.ClosedAt,
		ExecutionModelSnapshot: r.ExecutionModelSnapshot,
	}
	if r.BEArmedAt != nil {
		t.BEArmedAt = *r.BEArmedAt
	}
	if r.TrailArmedAt != nil {
		t.TrailArmedAt = *r.TrailArmedAt
	}
	if r.TimeStopTriggeredAt != nil {
		t.TimeStopTriggeredAt = *r.TimeStopTriggeredAt
	}
	if r.ProfitLockArmedAt != nil {
		t.ProfitLockArmedAt = *r.ProfitLockArmedAt
	}
	t.RealizedGrossPnl, _ = decimal.NewFromString(r.RealizedGrossPnl)
	t.RealizedCostPnl, _ = decimal.NewFromString(r.RealizedCostPnl)
	t.RealizedNetPnl, _ = decimal.NewFromString(r.RealizedNetPnl)
	if r.OptionType != nil {
		t.Option = &models.OptionMeta{OptionType: models.InstrumentType(*r.OptionType)}
		if r.OptionStrike != nil {
			t.Option.Strike = *r.OptionStrike
		}
	}
	return t
}

const tradeSelectColumns = `
	trade_id, side, strategy_id, instrument_token, tradingsymbol, status,
	requested_qty, filled_qty, entry_price, initial_stop_loss, stop_loss, target_price,
	rr, risk_inr, peak_ltp, peak_pnl_inr,
	be_locked, be_armed_at, trail_locked, trail_armed_at,
	time_stop_triggered, time_stop_triggered_at,
	profit_lock_armed_at, profit_lock_inr, profit_lock_r,
	underlying_entry_price, entry_order_id, stop_order_id, target_order_id,
	created_at, entry_placed_at, entry_filled_at, updated_at, closed_at,
	realized_gross_pnl, realized_cost_pnl, realized_net_pnl, execution_model_snapshot,
	option_type, option_strike
`

func (s *SQLTradeStore) Get(tradeID string) (*models.Trade, error) {
	var row tradeRow
	query := `SELECT ` + tradeSelectColumns + ` FROM managed_trades WHERE trade_id = ?`
	if err := s.db.Get(&row, query, tradeID); err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	t := row.toTrade()
	return &t, nil
}

func (s *SQLTradeStore) Open() ([]models.Trade, error) {
	var rows []tradeRow
	query := `SELECT ` + tradeSelectColumns + ` FROM managed_trades
		WHERE status IN ('ENTRY_PLACED', 'ENTRY_OPEN', 'ENTRY_REPLACED', 'ENTRY_FILLED', 'LIVE')
		ORDER BY created_at ASC`
	if err := s.db.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	out := make([]models.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTrade())
	}
	return out, nil
}

func (s *SQLTradeStore) All() ([]models.Trade, error) {
	var rows []tradeRow
	query := `SELECT ` + tradeSelectColumns + ` FROM managed_trades ORDER BY created_at DESC`
	if err := s.db.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to query all trades: %w", err)
	}
	out := make([]models.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTrade())
	}
	return out, nil
}
