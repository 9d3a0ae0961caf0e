package data

import (
	"fmt"
	"sync"

	"github.com/alexherrero/sherwood/backend/models"
)

// CandleCache is a bounded in-memory ring of recent candles per
// (instrument, interval), read on the hot path by strategies and the
// exit manager so neither has to hit the database per tick.
type CandleCache struct {
	mu       sync.RWMutex
	capacity int
	series    map[string][]models.Candle
}

// NewCandleCache creates a cache holding up to capacity candles per key.
func NewCandleCache(capacity int) *CandleCache {
	return &CandleCache{
		capacity: capacity,
		series:   make(map[string][]models.Candle),
	}
}

func candleCacheKey(token int64, intervalMinutes int) string {
	return fmt.Sprintf("%d:%d", token, intervalMinutes)
}

// Push appends a closed candle, evicting the oldest entry once capacity is
// exceeded. If the incoming candle shares a timestamp with the last one in
// the ring, it replaces it in place (late-duplicate tolerance).
func (c *CandleCache) Push(candle models.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := candleCacheKey(candle.InstrumentToken, candle.IntervalMinutes)
	series := c.series[key]

	if n := len(series); n > 0 && series[n-1].Timestamp.Equal(candle.Timestamp) {
		series[n-1] = candle
		c.series[key] = series
		return
	}

	series = append(series, candle)
	if len(series) > c.capacity {
		series = series[len(series)-c.capacity:]
	}
	c.series[key] = series
}

// Last returns the most recent n candles for (token, interval), oldest
// first. Returns fewer than n if the ring has not filled yet.
func (c *CandleCache) Last(token int64, intervalMinutes int, n int) []models.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()

	series := c.series[candleCacheKey(token, intervalMinutes)]
	if n >= len(series) {
		out := make([]models.Candle, len(series))
		copy(out, series)
		return out
	}
	out := make([]models.Candle, n)
	copy(out, series[len(series)-n:])
	return out
}

// Seed replaces the ring for (token, interval) with a backfilled series,
// used to warm the cache from CandleStore on startup or resubscribe.
func (c *CandleCache) Seed(token int64, intervalMinutes int, candles []models.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(candles) > c.capacity {
		candles = candles[len(candles)-c.capacity:]
	}
	series := make([]models.Candle, len(candles))
	copy(series, candles)
	c.series[candleCacheKey(token, intervalMinutes)] = series
}
