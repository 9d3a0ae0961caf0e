package strategies

import (
	"fmt"

	"github.com/alexherrero/sherwood/backend/models"
)

// WickReversal flags a single candle with a dominant wick against the
// recent short-term trend — a hammer after a decline, or a shooting star
// after an advance — as a reversal candidate.
type WickReversal struct {
	*BaseStrategy
	TrendPeriod   int
	MinWickRatio  float64
}

// NewWickReversal creates the strategy with its default tuning: the wick
// must be at least twice the candle's body.
func NewWickReversal() *WickReversal {
	return &WickReversal{BaseStrategy: NewBaseStrategy("wick_reversal"), TrendPeriod: 5, MinWickRatio: 2.0}
}

func (s *WickReversal) Style() models.RegimeStyle { return models.RegimeAlways }
func (s *WickReversal) MinCandles() int           { return s.TrendPeriod + 1 }

func (s *WickReversal) Evaluate(candles []models.Candle) *models.Signal {
	if len(candles) < s.MinCandles() {
		return nil
	}
	n := len(candles)
	last := candles[n-1]

	body := last.Close - last.Open
	absBody := body
	if absBody < 0 {
		absBody = -absBody
	}
	upperWick := last.High - max64(last.Open, last.Close)
	lowerWick := min64(last.Open, last.Close) - last.Low
	if absBody == 0 {
		absBody = (last.High - last.Low) * 0.01
		if absBody == 0 {
			return nil
		}
	}

	trendStart := n - 1 - s.TrendPeriod
	priorTrend := last.Open - candles[trendStart].Close
	meta := map[string]interface{}{"upper_wick": upperWick, "lower_wick": lowerWick, "body": absBody}

	if lowerWick >= s.MinWickRatio*absBody && priorTrend < 0 {
		confidence := clampConfidence(45 + lowerWick/absBody*5)
		return signal(s.Name(), s.Style(), models.OrderSideBuy, confidence,
			fmt.Sprintf("hammer after decline, lower wick %.2fx body", lowerWick/absBody), last, meta)
	}
	if upperWick >= s.MinWickRatio*absBody && priorTrend > 0 {
		confidence := clampConfidence(45 + upperWick/absBody*5)
		return signal(s.Name(), s.Style(), models.OrderSideSell, confidence,
			fmt.Sprintf("shooting star after advance, upper wick %.2fx body", upperWick/absBody), last, meta)
	}
	return nil
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
