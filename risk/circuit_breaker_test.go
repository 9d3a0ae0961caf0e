package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxConsecutiveFailures: 3, CooldownMinutes: 60}, zerolog.Nop())

	cb.RecordFailure("timeout")
	cb.RecordFailure("timeout")
	assert.False(t, cb.IsTripped())

	cb.RecordFailure("timeout")
	assert.True(t, cb.IsTripped())
	assert.Equal(t, "consecutive failures", cb.TripReason())
}

func TestCircuitBreaker_SuccessResetsConsecutiveCounter(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxConsecutiveFailures: 2, CooldownMinutes: 60}, zerolog.Nop())

	cb.RecordFailure("timeout")
	cb.RecordSuccess()
	cb.RecordFailure("timeout")
	assert.False(t, cb.IsTripped())
}

func TestCircuitBreaker_ZeroCooldownDisablesAutoReset(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxConsecutiveFailures: 1, CooldownMinutes: 0}, zerolog.Nop())
	cb.RecordFailure("timeout")
	assert.True(t, cb.tripped)

	// CooldownMinutes of 0 disables the auto-reset check entirely: the
	// breaker only clears on an explicit Reset.
	assert.True(t, cb.IsTripped())
	cb.Reset()
	assert.False(t, cb.IsTripped())
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxConsecutiveFailures: 1}, zerolog.Nop())
	cb.RecordFailure("timeout")
	assert.True(t, cb.IsTripped())

	cb.Reset()
	assert.False(t, cb.IsTripped())
	assert.Equal(t, "", cb.TripReason())
}

func TestBreakerManager_SetCooldown_Scenario6(t *testing.T) {
	m := NewBreakerManager(BreakerConfig{MaxConsecutiveFailures: 100, MaxFailuresPerHour: 100, CooldownMinutes: 1}, zerolog.Nop())

	key := "STRAT-A:NIFTY:260226"
	m.SetCooldown(key, 60*time.Second)

	assert.True(t, m.InCooldown(key))
	assert.False(t, m.InCooldown("STRAT-A:NIFTY:999999"))
}

func TestBreakerManager_InCooldown_ExpiresAfterDuration(t *testing.T) {
	m := NewBreakerManager(BreakerConfig{}, zerolog.Nop())
	key := "STRAT-B:BANKNIFTY:111111"

	m.SetCooldown(key, 50*time.Millisecond)
	assert.True(t, m.InCooldown(key))

	time.Sleep(100 * time.Millisecond)
	assert.False(t, m.InCooldown(key))
}

func TestBreakerManager_Reset_ClearsBreakerAndCooldown(t *testing.T) {
	m := NewBreakerManager(BreakerConfig{MaxConsecutiveFailures: 1}, zerolog.Nop())
	key := "STRAT-A:NIFTY:1"

	m.RecordFailure(key, "order rejected")
	m.SetCooldown(key, time.Minute)
	assert.True(t, m.IsTripped(key))
	assert.True(t, m.InCooldown(key))

	m.Reset(key)
	assert.False(t, m.IsTripped(key))
	assert.False(t, m.InCooldown(key))
}
