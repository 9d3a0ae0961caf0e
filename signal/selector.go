// Package signal implements the regime selector and the per-candle-close
// pipeline that multiplexes strategies across it.
package signal

import (
	"math"
	"time"

	"github.com/alexherrero/sherwood/backend/market"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/utils/indicators"
)

// SelectorConfig tunes the regime classifier.
type SelectorConfig struct {
	// OpenWindowMinutes is how long after session open the OPEN regime is
	// forced, overriding the trend/range read.
	OpenWindowMinutes int
	// TrendPeriod is the SMA period whose slope proxies trend strength.
	TrendPeriod int
	// TrendSlopeThreshold is the minimum |slope|/(averageRange*TrendPeriod)
	// ratio to call the regime TREND rather than RANGE.
	TrendSlopeThreshold float64
}

// DefaultSelectorConfig matches a 15-minute opening window and a 20-bar
// trend read, the same horizon strategies.OpeningRangeBreakout uses.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		OpenWindowMinutes:   15,
		TrendPeriod:         20,
		TrendSlopeThreshold: 0.15,
	}
}

// Selector classifies the current market regime from recent candle action.
type Selector struct {
	cfg SelectorConfig
}

// NewSelector creates a Selector with cfg.
func NewSelector(cfg SelectorConfig) *Selector {
	return &Selector{cfg: cfg}
}

// Classify returns the current regime for candles (oldest first, most
// recent last). It forces OPEN during the configured opening window,
// otherwise compares the trailing SMA slope against the average high-low
// range to distinguish a trending market from a range-bound one.
func (s *Selector) Classify(candles []models.Candle) models.RegimeStyle {
	if len(candles) == 0 {
		return models.RegimeRange
	}
	last := candles[len(candles)-1]
	sessionStart := sessionStartIndex(candles)
	sessionOpenAt := candles[sessionStart].Timestamp.In(market.IST)
	openWindowEnd := sessionOpenAt.Add(time.Duration(s.cfg.OpenWindowMinutes) * time.Minute)
	if !last.Timestamp.In(market.IST).After(openWindowEnd) {
		return models.RegimeOpen
	}

	period := s.cfg.TrendPeriod
	if len(candles) < period+1 {
		return models.RegimeRange
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	sma := indicators.SMA(closes, period)
	n := len(sma)
	slope := sma[n-1] - sma[n-1-period]

	var sumRange float64
	for i := len(candles) - period; i < len(candles); i++ {
		sumRange += candles[i].High - candles[i].Low
	}
	avgRange := sumRange / float64(period)
	if avgRange == 0 {
		return models.RegimeRange
	}

	trendiness := math.Abs(slope) / (avgRange * float64(period))
	if trendiness >= s.cfg.TrendSlopeThreshold {
		return models.RegimeTrend
	}
	return models.RegimeRange
}

func sessionStartIndex(candles []models.Candle) int {
	if len(candles) == 0 {
		return 0
	}
	last := candles[len(candles)-1].Timestamp
	y, m, d := last.Date()
	for i := len(candles) - 1; i >= 0; i-- {
		cy, cm, cd := candles[i].Timestamp.Date()
		if cy != y || cm != m || cd != d {
			return i + 1
		}
	}
	return 0
}
