package strategies

import (
	"math"

	"github.com/alexherrero/sherwood/backend/models"
)

func closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func highs(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func lows(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

func volumes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

func typicalPrices(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = (c.High + c.Low + c.Close) / 3
	}
	return out
}

// clampConfidence keeps the 0-100 calibration spec.md §4.3 requires.
func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func signal(strategyID string, style models.RegimeStyle, side models.OrderSide, confidence float64, reason string, candle models.Candle, meta map[string]interface{}) *models.Signal {
	sigType := models.SignalBuy
	if side == models.OrderSideSell {
		sigType = models.SignalSell
	}
	return &models.Signal{
		StrategyID:      strategyID,
		StrategyName:    strategyID,
		Style:           style,
		Side:            side,
		Type:            sigType,
		Confidence:      clampConfidence(confidence),
		InstrumentToken: candle.InstrumentToken,
		Candle:          candle,
		Price:           candle.Close,
		Reason:          reason,
		Meta:            meta,
		ProducedAt:      candle.Timestamp,
	}
}

func lastFinite(v []float64) float64 {
	for i := len(v) - 1; i >= 0; i-- {
		if !math.IsNaN(v[i]) {
			return v[i]
		}
	}
	return math.NaN()
}

// sessionStartIndex returns the index of the first candle belonging to the
// same calendar day as the last candle (dates are read in each timestamp's
// own location; nothing converts them to IST), for
// session-scoped accumulators like VWAP and the opening range.
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

func withinBps(a, b, bps float64) bool {
	if b == 0 {
		return false
	}
	diff := math.Abs(a-b) / math.Abs(b) * 10000
	return diff <= bps
}
