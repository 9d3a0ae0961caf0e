package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/alexherrero/sherwood/backend/market"
)

// EngineConfig holds the per-session gate thresholds RiskEngine enforces.
// Defaults live alongside the struct per the "explicit config struct"
// design note rather than scattered through the call sites.
type EngineConfig struct {
	MaxOpenPositions      int
	MaxTradesPerDay       int
	MaxConsecutiveFailures int
	CooldownSeconds       int
}

// DefaultEngineConfig returns conservative defaults for an intraday engine.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxOpenPositions:       5,
		MaxTradesPerDay:        20,
		MaxConsecutiveFailures: 3,
		CooldownSeconds:        60,
	}
}

// DenialReason is the stage/reason recorded in the BLOCKED telemetry entry
// whenever the admission chain rejects a signal.
type DenialReason string

const (
	DenyNone               DenialReason = ""
	DenyKillSwitch         DenialReason = "KILL_SWITCH"
	DenyCooldown           DenialReason = "COOLDOWN"
	DenyExistingPosition   DenialReason = "EXISTING_POSITION"
	DenyMaxOpenPositions   DenialReason = "MAX_OPEN_POSITIONS"
	DenyMaxTradesPerDay    DenialReason = "MAX_TRADES_PER_DAY"
	DenyConsecutiveFailure DenialReason = "CONSECUTIVE_FAILURES"
	DenyMarketClosed       DenialReason = "MARKET_CLOSED"
	DenyHoliday            DenialReason = "HOLIDAY"
	DenyEntryCutoff        DenialReason = "ENTRY_CUTOFF"
)

// Engine is the per-session admission gate: kill switch, cooldowns, market
// calendar, and the session's open-position/trades-per-day caps. It owns
// its state and is safe for concurrent use; callers never lock around it.
type Engine struct {
	mu sync.Mutex

	cfg      EngineConfig
	calendar *market.Calendar

	killSwitch bool

	tokenCooldownUntil map[int64]time.Time
	openTokens         map[int64]bool
	tradesToday        int
	tradesDayKey       string
	consecutiveFails   int
}

// NewEngine creates a RiskEngine bound to the given calendar.
func NewEngine(cfg EngineConfig, cal *market.Calendar) *Engine {
	return &Engine{
		cfg:                cfg,
		calendar:           cal,
		tokenCooldownUntil: make(map[int64]time.Time),
		openTokens:         make(map[int64]bool),
	}
}

// SetKillSwitch sets or clears the kill switch. Unlike HALT, the kill
// switch is an operator decision that an admin HALT-reset does not clear.
func (e *Engine) SetKillSwitch(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killSwitch = on
}

// KillSwitch reports the current kill-switch state.
func (e *Engine) KillSwitch() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killSwitch
}

// SetCooldown puts token into cooldown for the configured duration (or an
// explicit duration if d > 0).
func (e *Engine) SetCooldown(token int64, d time.Duration) {
	if d <= 0 {
		d = time.Duration(e.cfg.CooldownSeconds) * time.Second
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokenCooldownUntil[token] = time.Now().Add(d)
}

// MarkOpen records that token now has a live position (called by
// TradeManager on fill, cleared on close).
func (e *Engine) MarkOpen(token int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openTokens[token] = true
}

// MarkClosed clears token's open-position flag.
func (e *Engine) MarkClosed(token int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.openTokens, token)
}

// RecordFailure increments the consecutive-failure counter.
func (e *Engine) RecordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveFails++
}

// RecordSuccess resets the consecutive-failure counter.
func (e *Engine) RecordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveFails = 0
}

// RecordTradeOpened increments today's trade count, resetting the counter
// when the session day rolls over.
func (e *Engine) RecordTradeOpened(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dayKey := market.DayKey(now)
	if dayKey != e.tradesDayKey {
		e.tradesDayKey = dayKey
		e.tradesToday = 0
	}
	e.tradesToday++
}

// CanTrade runs admission-chain step 2: kill state, cooldown, existing
// position, open-position cap, daily-trade cap, and the consecutive-failure
// cap. It does not check HALT or market hours globally — callers invoke
// CanEnterNow for the calendar-bound part of step 1.
func (e *Engine) CanTrade(token int64, now time.Time) (bool, DenialReason) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.killSwitch {
		return false, DenyKillSwitch
	}
	if until, ok := e.tokenCooldownUntil[token]; ok {
		if now.Before(until) {
			return false, DenyCooldown
		}
		delete(e.tokenCooldownUntil, token)
	}
	if e.openTokens[token] {
		return false, DenyExistingPosition
	}
	if e.cfg.MaxOpenPositions > 0 && len(e.openTokens) >= e.cfg.MaxOpenPositions {
		return false, DenyMaxOpenPositions
	}
	dayKey := market.DayKey(now)
	tradesToday := e.tradesToday
	if dayKey != e.tradesDayKey {
		tradesToday = 0
	}
	if e.cfg.MaxTradesPerDay > 0 && tradesToday >= e.cfg.MaxTradesPerDay {
		return false, DenyMaxTradesPerDay
	}
	if e.cfg.MaxConsecutiveFailures > 0 && e.consecutiveFails >= e.cfg.MaxConsecutiveFailures {
		return false, DenyConsecutiveFailure
	}
	return true, DenyNone
}

// CanEnterNow runs admission-chain step 1's calendar portion: weekends and
// holidays excluded, session open/close and entry cutoff enforced.
func (e *Engine) CanEnterNow(now time.Time) (bool, DenialReason) {
	if e.calendar == nil {
		return true, DenyNone
	}
	if !e.calendar.IsTradingDay(now) {
		return false, DenyHoliday
	}
	if !e.calendar.IsMarketOpen(now) {
		return false, DenyMarketClosed
	}
	if !e.calendar.AllowsEntry(now) {
		return false, DenyEntryCutoff
	}
	return true, DenyNone
}

// Err renders a denial reason as an error for logging/telemetry call sites
// that want a formatted message rather than the bare typed reason.
func Err(reason DenialReason) error {
	if reason == DenyNone {
		return nil
	}
	return fmt.Errorf("risk engine denial: %s", reason)
}
