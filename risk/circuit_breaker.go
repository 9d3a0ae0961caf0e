// Package risk implements the per-session admission gate, the portfolio
// governor, the adaptive optimizer, and the order rate limiter that sit
// between a signal and an order placement.
package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BreakerConfig configures one circuit breaker instance.
type BreakerConfig struct {
	MaxConsecutiveFailures int
	MaxFailuresPerHour     int
	CooldownMinutes        int
}

// CircuitBreaker trips after repeated order/API failures on a single key
// (a token, or a strategy:underlying:token risk key) and auto-resets after
// a cooldown. Tripping a breaker only changes what IsTripped reports; the
// trade admission path does not consult it.
type CircuitBreaker struct {
	mu                  sync.Mutex
	cfg                 BreakerConfig
	consecutiveFailures int
	hourlyFailures      []time.Time
	tripped             bool
	trippedAt           time.Time
	tripReason          string
	logger              zerolog.Logger
}

// NewCircuitBreaker creates a breaker with the given configuration.
func NewCircuitBreaker(cfg BreakerConfig, logger zerolog.Logger) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, logger: logger}
}

// RecordFailure records a failure and trips the breaker if either threshold
// is breached.
func (cb *CircuitBreaker) RecordFailure(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.tripped {
		return
	}

	now := time.Now()
	cb.consecutiveFailures++
	cb.hourlyFailures = append(cb.hourlyFailures, now)
	cb.pruneHourlyFailures(now)

	if cb.cfg.MaxConsecutiveFailures > 0 && cb.consecutiveFailures >= cb.cfg.MaxConsecutiveFailures {
		cb.trip("consecutive failures")
		return
	}
	if cb.cfg.MaxFailuresPerHour > 0 && len(cb.hourlyFailures) >= cb.cfg.MaxFailuresPerHour {
		cb.trip("hourly failures")
		return
	}

	cb.logger.Debug().Str("reason", reason).Int("consecutive", cb.consecutiveFailures).
		Int("hourly", len(cb.hourlyFailures)).Msg("circuit breaker: failure recorded")
}

// RecordSuccess resets the consecutive-failure counter; the hourly window
// is not cleared by a success.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
}

// IsTripped reports whether the breaker is tripped, auto-resetting if its
// cooldown has elapsed.
func (cb *CircuitBreaker) IsTripped() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.tripped {
		return false
	}
	if cb.cfg.CooldownMinutes > 0 {
		cooldown := time.Duration(cb.cfg.CooldownMinutes) * time.Minute
		if time.Since(cb.trippedAt) >= cooldown {
			cb.logger.Info().Msg("circuit breaker: cooldown expired, auto-reset")
			cb.resetLocked()
			return false
		}
	}
	return true
}

// TripReason returns why the breaker is tripped, or "" if it isn't.
func (cb *CircuitBreaker) TripReason() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.tripped {
		return ""
	}
	return cb.tripReason
}

// Reset manually clears the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.resetLocked()
}

func (cb *CircuitBreaker) trip(reason string) {
	cb.tripped = true
	cb.trippedAt = time.Now()
	cb.tripReason = reason
	cb.logger.Warn().Str("reason", reason).Msg("circuit breaker: TRIPPED")
}

func (cb *CircuitBreaker) resetLocked() {
	cb.tripped = false
	cb.trippedAt = time.Time{}
	cb.tripReason = ""
	cb.consecutiveFailures = 0
	cb.hourlyFailures = nil
}

func (cb *CircuitBreaker) pruneHourlyFailures(now time.Time) {
	cutoff := now.Add(-1 * time.Hour)
	i := 0
	for i < len(cb.hourlyFailures) && cb.hourlyFailures[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		cb.hourlyFailures = cb.hourlyFailures[i:]
	}
}

// BreakerManager owns one CircuitBreaker per risk key, lazily created, plus
// a simple per-key cooldown map used for the "circuit-breaker rejection"
// cooldown in the order-error taxonomy (§7). Cooldowns here are distinct
// from the optimizer's auto-blocks; TradeManager sets one here for each
// circuit-breaker rejection and never touches the optimizer's blocks.
type BreakerManager struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	breakers  map[string]*CircuitBreaker
	cooldowns map[string]time.Time
	logger    zerolog.Logger
}

// NewBreakerManager creates an empty manager.
func NewBreakerManager(cfg BreakerConfig, logger zerolog.Logger) *BreakerManager {
	return &BreakerManager{
		cfg:       cfg,
		breakers:  make(map[string]*CircuitBreaker),
		cooldowns: make(map[string]time.Time),
		logger:    logger,
	}
}

func (m *BreakerManager) breakerFor(key string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[key]
	if !ok {
		b = NewCircuitBreaker(m.cfg, m.logger)
		m.breakers[key] = b
	}
	return b
}

// RecordFailure records a failure against key's breaker.
func (m *BreakerManager) RecordFailure(key, reason string) {
	m.breakerFor(key).RecordFailure(reason)
}

// RecordSuccess resets key's breaker consecutive-failure counter.
func (m *BreakerManager) RecordSuccess(key string) {
	m.breakerFor(key).RecordSuccess()
}

// IsTripped reports whether key's breaker is tripped.
func (m *BreakerManager) IsTripped(key string) bool {
	return m.breakerFor(key).IsTripped()
}

// SetCooldown sets an explicit cooldown on key for the given duration,
// independent of the consecutive/hourly failure thresholds. This is what
// a CIRCUIT_BREAKER order rejection sets directly (spec.md §8 scenario 6).
func (m *BreakerManager) SetCooldown(key string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[key] = time.Now().Add(d)
}

// InCooldown reports whether key is currently within an explicit cooldown
// window set by SetCooldown.
func (m *BreakerManager) InCooldown(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.cooldowns[key]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(m.cooldowns, key)
		return false
	}
	return true
}

// Reset clears both the breaker and any explicit cooldown for key.
func (m *BreakerManager) Reset(key string) {
	m.mu.Lock()
	if b, ok := m.breakers[key]; ok {
		_ = b
	}
	delete(m.cooldowns, key)
	m.mu.Unlock()
	m.breakerFor(key).Reset()
}
