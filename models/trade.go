package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus is the lifecycle state of a Trade. Transitions are driven
// exclusively by the trade manager's state machine; no other component may
// assign this field directly.
type TradeStatus string

const (
	TradeNew            TradeStatus = "NEW"
	TradeEntryPlaced     TradeStatus = "ENTRY_PLACED"
	TradeEntryOpen       TradeStatus = "ENTRY_OPEN"
	TradeEntryReplaced   TradeStatus = "ENTRY_REPLACED"
	TradeEntryFilled     TradeStatus = "ENTRY_FILLED"
	TradeLive            TradeStatus = "LIVE"
	TradeExitedTarget     TradeStatus = "EXITED_TARGET"
	TradeExitedSL         TradeStatus = "EXITED_SL"
	TradeExitedManual     TradeStatus = "EXITED_MANUAL"
	TradeClosed           TradeStatus = "CLOSED"
	// Fault terminals.
	TradeEntryFailed    TradeStatus = "ENTRY_FAILED"
	TradeEntryCancelled TradeStatus = "ENTRY_CANCELLED"
	TradeGuardFailed     TradeStatus = "GUARD_FAILED"
)

// IsTerminal reports whether status is a terminal state — a successful
// exit, CLOSED, or a fault terminal. The exit states and GUARD_FAILED still
// allow one final transition, to CLOSED.
func (s TradeStatus) IsTerminal() bool {
	switch s {
	case TradeExitedTarget, TradeExitedSL, TradeExitedManual, TradeClosed,
		TradeEntryFailed, TradeEntryCancelled, TradeGuardFailed:
		return true
	}
	return false
}

// IsOpenRisk reports whether the trade currently contributes to open-risk
// accounting (has a live position with capital at risk).
func (s TradeStatus) IsOpenRisk() bool {
	switch s {
	case TradeEntryFilled, TradeLive:
		return true
	}
	return false
}

// OptionMeta carries option-specific context, set only when the trade's
// instrument type is CE/PE.
type OptionMeta struct {
	OptionType      InstrumentType `json:"option_type,omitempty" db:"option_type"`
	Strike          float64        `json:"strike,omitempty" db:"strike"`
	Expiry          time.Time      `json:"expiry,omitempty" db:"expiry"`
	UnderlyingToken int64          `json:"underlying_token,omitempty" db:"underlying_token"`
}

// Trade is the aggregate entity for one managed position, from signal
// admission through final close. It is the single owning record that
// orders, fills, and exit-plan patches reference by TradeID; nothing holds
// a pointer to it across a persistence boundary.
type Trade struct {
	TradeID  string      `json:"trade_id" db:"trade_id"`
	Side     OrderSide   `json:"side" db:"side"`
	StrategyID string    `json:"strategy_id" db:"strategy_id"`
	InstrumentToken int64 `json:"instrument_token" db:"instrument_token"`
	TradingSymbol   string `json:"tradingsymbol" db:"tradingsymbol"`
	Status   TradeStatus `json:"status" db:"status"`

	RequestedQty float64 `json:"requested_qty" db:"requested_qty"`
	FilledQty    float64 `json:"filled_qty" db:"filled_qty"`

	EntryPrice      float64 `json:"entry_price" db:"entry_price"`
	InitialStopLoss float64 `json:"initial_stop_loss" db:"initial_stop_loss"`
	StopLoss        float64 `json:"stop_loss" db:"stop_loss"`
	TargetPrice     float64 `json:"target_price,omitempty" db:"target_price"`
	RR              float64 `json:"rr" db:"rr"`
	RiskInr         float64 `json:"risk_inr" db:"risk_inr"`

	PeakLtp    float64 `json:"peak_ltp" db:"peak_ltp"`
	PeakPnlInr float64 `json:"peak_pnl_inr" db:"peak_pnl_inr"`

	BELocked     bool      `json:"be_locked" db:"be_locked"`
	BEArmedAt    time.Time `json:"be_armed_at,omitempty" db:"be_armed_at"`
	TrailLocked  bool      `json:"trail_locked" db:"trail_locked"`
	TrailArmedAt time.Time `json:"trail_armed_at,omitempty" db:"trail_armed_at"`

	TimeStopTriggered   bool      `json:"time_stop_triggered" db:"time_stop_triggered"`
	TimeStopTriggeredAt time.Time `json:"time_stop_triggered_at,omitempty" db:"time_stop_triggered_at"`

	ProfitLockArmedAt time.Time `json:"profit_lock_armed_at,omitempty" db:"profit_lock_armed_at"`
	ProfitLockInr     float64   `json:"profit_lock_inr,omitempty" db:"profit_lock_inr"`
	ProfitLockR       float64   `json:"profit_lock_r,omitempty" db:"profit_lock_r"`

	UnderlyingEntryPrice float64 `json:"underlying_entry_price,omitempty" db:"underlying_entry_price"`

	EntryOrderID  string `json:"entry_order_id,omitempty" db:"entry_order_id"`
	StopOrderID   string `json:"stop_order_id,omitempty" db:"stop_order_id"`
	TargetOrderID string `json:"target_order_id,omitempty" db:"target_order_id"`

	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	EntryPlacedAt *time.Time `json:"entry_placed_at,omitempty" db:"entry_placed_at"`
	EntryFilledAt *time.Time `json:"entry_filled_at,omitempty" db:"entry_filled_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty" db:"closed_at"`

	RealizedGrossPnl decimal.Decimal `json:"realized_gross_pnl" db:"realized_gross_pnl"`
	RealizedCostPnl  decimal.Decimal `json:"realized_cost_pnl" db:"realized_cost_pnl"`
	RealizedNetPnl   decimal.Decimal `json:"realized_net_pnl" db:"realized_net_pnl"`

	ExecutionModelSnapshot string `json:"execution_model_snapshot,omitempty" db:"execution_model_snapshot"`

	Option *OptionMeta `json:"option,omitempty" db:"-"`
}

// IsOption reports whether this trade carries option metadata.
func (t Trade) IsOption() bool {
	return t.Option != nil
}

// RiskPerUnit returns |entry - initialStopLoss|, the 1R distance in price
// terms used throughout the exit manager and optimizer.
func (t Trade) RiskPerUnit() float64 {
	r := t.EntryPrice - t.InitialStopLoss
	if t.Side == OrderSideSell {
		r = t.InitialStopLoss - t.EntryPrice
	}
	if r < 0 {
		return -r
	}
	return r
}

// PnLInr returns unrealized P&L in INR at the given LTP for the trade's
// filled quantity.
func (t Trade) PnLInr(ltp float64) float64 {
	diff := ltp - t.EntryPrice
	if t.Side == OrderSideSell {
		diff = t.EntryPrice - ltp
	}
	return diff * t.FilledQty
}

// PnLR returns unrealized P&L expressed in multiples of R (risk per unit).
func (t Trade) PnLR(ltp float64) float64 {
	r := t.RiskPerUnit()
	if r <= 0 {
		return 0
	}
	diff := ltp - t.EntryPrice
	if t.Side == OrderSideSell {
		diff = t.EntryPrice - ltp
	}
	return diff / r
}
