package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderRateLimiter_AdmitsExactlyConfiguredBurst(t *testing.T) {
	l := NewOrderRateLimiter(RateLimiterConfig{PerSecond: 3, PerMinute: 1000})
	now := time.Now()

	admitted := 0
	for i := 0; i < 5; i++ {
		if l.Allow(now) {
			admitted++
		}
	}
	assert.Equal(t, 3, admitted)
}

func TestOrderRateLimiter_RefillsOverTime(t *testing.T) {
	l := NewOrderRateLimiter(RateLimiterConfig{PerSecond: 1, PerMinute: 1000})
	now := time.Now()

	assert.True(t, l.Allow(now))
	assert.False(t, l.Allow(now))
	assert.True(t, l.Allow(now.Add(time.Second)))
}

func TestOrderRateLimiter_PerMinuteBucketCapsIndependently(t *testing.T) {
	l := NewOrderRateLimiter(RateLimiterConfig{PerSecond: 1000, PerMinute: 2})
	now := time.Now()

	admitted := 0
	for i := 0; i < 4; i++ {
		if l.Allow(now) {
			admitted++
		}
	}
	assert.Equal(t, 2, admitted)
}
