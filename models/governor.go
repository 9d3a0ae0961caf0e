package models

import "time"

// GovernorState is the per-session-day aggregate the PortfolioGovernor
// reads and mutates. Exactly one row exists per (DayKey) in the session
// timezone; TradeManager and Governor both key their writes off DayKey so
// a restart resumes the same day's counters instead of starting fresh.
type GovernorState struct {
	DayKey string `json:"day_key" db:"day_key"`

	RealizedPnlInr float64 `json:"realized_pnl_inr" db:"realized_pnl_inr"`
	RealizedPnlR   float64 `json:"realized_pnl_r" db:"realized_pnl_r"`
	TradesCount    int     `json:"trades_count" db:"trades_count"`
	LossStreak     int     `json:"loss_streak" db:"loss_streak"`

	OpenRiskInr            float64            `json:"open_risk_inr" db:"open_risk_inr"`
	OpenTradeRiskByTradeID  map[string]float64 `json:"open_trade_risk_by_trade_id" db:"-"`
	ProcessedClosedTradeIDs map[string]bool    `json:"-" db:"-"`

	OrderErrorTimestamps []time.Time `json:"order_error_timestamps" db:"-"`
	OrderErrBreakerUntil time.Time   `json:"order_err_breaker_until,omitempty" db:"order_err_breaker_until"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewGovernorState builds an empty state for a fresh trading day.
func NewGovernorState(dayKey string) *GovernorState {
	return &GovernorState{
		DayKey:                  dayKey,
		OpenTradeRiskByTradeID:  make(map[string]float64),
		ProcessedClosedTradeIDs: make(map[string]bool),
		OrderErrorTimestamps:    make([]time.Time, 0, 16),
	}
}

// OpenRiskSum recomputes the open-risk total from the per-trade map. Used
// as an invariant check: it must always equal OpenRiskInr.
func (g *GovernorState) OpenRiskSum() float64 {
	sum := 0.0
	for _, r := range g.OpenTradeRiskByTradeID {
		sum += r
	}
	return sum
}
