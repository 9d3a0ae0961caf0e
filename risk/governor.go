package risk

import (
	"sync"
	"time"

	"github.com/alexherrero/sherwood/backend/market"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/rs/zerolog"
)

// GovernorConfig holds the daily limits PortfolioGovernor enforces (§6
// "Daily limits").
type GovernorConfig struct {
	MaxLossR        float64
	MaxLossStreak   int
	ProfitGoalR     float64
	MaxOpenRiskR    float64
	OrderErrWindow  time.Duration
	OrderErrMax     int
	OrderErrCooldown time.Duration
}

// DefaultGovernorConfig returns conservative daily limits.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		MaxLossR:         3.0,
		MaxLossStreak:    4,
		ProfitGoalR:      6.0,
		MaxOpenRiskR:     2.0,
		OrderErrWindow:   10 * time.Minute,
		OrderErrMax:      5,
		OrderErrCooldown: 15 * time.Minute,
	}
}

// GovernorStore is the persistence port the Governor loads/saves its daily
// state through; satisfied by data.GovernorStore (sqlx over sqlite).
type GovernorStore interface {
	LoadGovernorState(dayKey string) (*models.GovernorState, error)
	SaveGovernorState(state *models.GovernorState) error
}

// Governor is the PortfolioGovernor: session-scoped P&L, open-risk, and
// order-error state with a persistent snapshot. All mutation is serialized
// through its own mutex so callers never race on the underlying counters.
type Governor struct {
	mu    sync.Mutex
	cfg   GovernorConfig
	store GovernorStore
	log   zerolog.Logger

	state *models.GovernorState
}

// NewGovernor loads (or creates) today's state from the store.
func NewGovernor(cfg GovernorConfig, store GovernorStore, now time.Time, log zerolog.Logger) (*Governor, error) {
	dayKey := market.DayKey(now)
	state, err := store.LoadGovernorState(dayKey)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = models.NewGovernorState(dayKey)
	}
	if state.OpenTradeRiskByTradeID == nil {
		state.OpenTradeRiskByTradeID = make(map[string]float64)
	}
	if state.ProcessedClosedTradeIDs == nil {
		state.ProcessedClosedTradeIDs = make(map[string]bool)
	}
	return &Governor{cfg: cfg, store: store, state: state, log: log}, nil
}

// rollIfNewDay swaps in a fresh GovernorState when the session day changes,
// persisting the prior day's final snapshot first.
func (g *Governor) rollIfNewDay(now time.Time) {
	dayKey := market.DayKey(now)
	if dayKey == g.state.DayKey {
		return
	}
	_ = g.store.SaveGovernorState(g.state)
	g.state = models.NewGovernorState(dayKey)
}

// CanOpenNewTrade runs admission-chain step 3.
func (g *Governor) CanOpenNewTrade(now time.Time, riskInr, rPerUnitInr float64) (bool, DenialReason) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollIfNewDay(now)

	if rPerUnitInr > 0 {
		if g.state.RealizedPnlR <= -g.cfg.MaxLossR {
			return false, "DAILY_MAX_LOSS_R"
		}
		if g.cfg.ProfitGoalR > 0 && g.state.RealizedPnlR >= g.cfg.ProfitGoalR {
			return false, "DAILY_PROFIT_GOAL_REACHED"
		}
	}
	if g.cfg.MaxLossStreak > 0 && g.state.LossStreak >= g.cfg.MaxLossStreak {
		return false, "MAX_LOSS_STREAK"
	}
	if g.cfg.MaxOpenRiskR > 0 && rPerUnitInr > 0 {
		openRiskR := g.state.OpenRiskInr / rPerUnitInr
		if openRiskR+1.0 > g.cfg.MaxOpenRiskR {
			return false, "MAX_OPEN_RISK_R"
		}
	}
	if g.orderErrorBreacherArmedLocked(now) {
		return false, "ORDER_ERROR_BREAKER"
	}
	return true, DenyNone
}

// orderErrorBreacherArmedLocked reports whether the order-error breaker is
// currently armed (caller holds g.mu).
func (g *Governor) orderErrorBreacherArmedLocked(now time.Time) bool {
	if g.state.OrderErrBreakerUntil.IsZero() {
		return false
	}
	return now.Before(g.state.OrderErrBreakerUntil)
}

// RecordOrderError appends an order-error timestamp and arms the breaker if
// the rolling window threshold is breached.
func (g *Governor) RecordOrderError(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollIfNewDay(now)

	cutoff := now.Add(-g.cfg.OrderErrWindow)
	kept := g.state.OrderErrorTimestamps[:0]
	for _, ts := range g.state.OrderErrorTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	g.state.OrderErrorTimestamps = kept

	if g.cfg.OrderErrMax > 0 && len(kept) >= g.cfg.OrderErrMax {
		g.state.OrderErrBreakerUntil = now.Add(g.cfg.OrderErrCooldown)
		g.log.Warn().Int("count", len(kept)).Msg("governor: order-error breaker armed")
	}
	_ = g.store.SaveGovernorState(g.state)
}

// OpenRisk registers tradeID's open risk (called on ENTRY_FILLED).
func (g *Governor) OpenRisk(now time.Time, tradeID string, riskInr float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollIfNewDay(now)
	g.state.OpenTradeRiskByTradeID[tradeID] = riskInr
	g.state.OpenRiskInr = g.state.OpenRiskSum()
	_ = g.store.SaveGovernorState(g.state)
}

// CloseTrade records a closed trade's realized P&L exactly once per
// tradeID (processedClosedTradeIds dedup), updates the loss streak, and
// removes the trade's open-risk entry.
func (g *Governor) CloseTrade(now time.Time, tradeID string, realizedPnlInr, realizedPnlR float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollIfNewDay(now)

	delete(g.state.OpenTradeRiskByTradeID, tradeID)
	g.state.OpenRiskInr = g.state.OpenRiskSum()

	if g.state.ProcessedClosedTradeIDs[tradeID] {
		_ = g.store.SaveGovernorState(g.state)
		return
	}
	g.state.ProcessedClosedTradeIDs[tradeID] = true
	g.state.RealizedPnlInr += realizedPnlInr
	g.state.RealizedPnlR += realizedPnlR
	g.state.TradesCount++
	if realizedPnlInr < 0 {
		g.state.LossStreak++
	} else {
		g.state.LossStreak = 0
	}
	g.state.UpdatedAt = now
	_ = g.store.SaveGovernorState(g.state)
}

// Snapshot returns a copy of the current day's state for telemetry/admin
// surfaces; the caller must not mutate the returned maps concurrently with
// further Governor calls.
func (g *Governor) Snapshot() models.GovernorState {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *g.state
	return cp
}
