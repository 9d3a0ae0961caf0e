package risk

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig holds the per-second/per-minute order admission caps
// from §6 "Order flow".
type RateLimiterConfig struct {
	PerSecond int
	PerMinute int
}

// DefaultRateLimiterConfig returns conservative caps.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{PerSecond: 3, PerMinute: 30}
}

// OrderRateLimiter is admission-chain step 5: independent per-second and
// per-minute token buckets, both of which must admit the order.
type OrderRateLimiter struct {
	perSecond *rate.Limiter
	perMinute *rate.Limiter
}

// NewOrderRateLimiter builds a limiter from the configured caps. Each
// bucket's burst equals its cap so a fresh limiter admits exactly that many
// requests instantaneously, matching the testable property in spec.md §8.
func NewOrderRateLimiter(cfg RateLimiterConfig) *OrderRateLimiter {
	return &OrderRateLimiter{
		perSecond: rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.PerSecond),
		perMinute: rate.NewLimiter(rate.Limit(float64(cfg.PerMinute)/60.0), cfg.PerMinute),
	}
}

// Allow reports whether an order may be placed at now. Both buckets must
// have capacity; checking availability before consuming keeps a denial on
// one bucket from silently burning a token in the other.
func (l *OrderRateLimiter) Allow(now time.Time) bool {
	if l.perSecond.TokensAt(now) < 1 || l.perMinute.TokensAt(now) < 1 {
		return false
	}
	l.perSecond.AllowN(now, 1)
	l.perMinute.AllowN(now, 1)
	return true
}
