package strategies

import (
	"fmt"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/utils/indicators"
)

// RangeBreakoutVolume trades a break of the N-candle high/low range, but
// only when it's backed by above-average volume — an unconfirmed range
// break is treated as noise.
type RangeBreakoutVolume struct {
	*BaseStrategy
	RangePeriod  int
	MinRelVolume float64
}

// NewRangeBreakoutVolume creates the strategy with its default tuning.
func NewRangeBreakoutVolume() *RangeBreakoutVolume {
	return &RangeBreakoutVolume{
		BaseStrategy: NewBaseStrategy("range_breakout_volume"),
		RangePeriod:  20,
		MinRelVolume: 1.5,
	}
}

func (s *RangeBreakoutVolume) Style() models.RegimeStyle { return models.RegimeRange }
func (s *RangeBreakoutVolume) MinCandles() int           { return s.RangePeriod + 1 }

func (s *RangeBreakoutVolume) Evaluate(candles []models.Candle) *models.Signal {
	if len(candles) < s.MinCandles() {
		return nil
	}
	n := len(candles)
	relVol := indicators.RelativeVolume(volumes(candles), s.RangePeriod)
	curRelVol := relVol[n-1]
	if curRelVol < s.MinRelVolume {
		return nil
	}

	rangeHigh, rangeLow := -1.0, -1.0
	for i := n - 1 - s.RangePeriod; i < n-1; i++ {
		if rangeHigh < 0 || candles[i].High > rangeHigh {
			rangeHigh = candles[i].High
		}
		if rangeLow < 0 || candles[i].Low < rangeLow {
			rangeLow = candles[i].Low
		}
	}

	last := candles[n-1]
	meta := map[string]interface{}{"range_high": rangeHigh, "range_low": rangeLow, "rel_volume": curRelVol}

	if last.Close > rangeHigh {
		confidence := clampConfidence(50 + (curRelVol-1)*15)
		return signal(s.Name(), s.Style(), models.OrderSideBuy, confidence,
			fmt.Sprintf("broke %d-bar range high %.2f on %.2fx volume", s.RangePeriod, rangeHigh, curRelVol), last, meta)
	}
	if last.Close < rangeLow {
		confidence := clampConfidence(50 + (curRelVol-1)*15)
		return signal(s.Name(), s.Style(), models.OrderSideSell, confidence,
			fmt.Sprintf("broke %d-bar range low %.2f on %.2fx volume", s.RangePeriod, rangeLow, curRelVol), last, meta)
	}
	return nil
}
