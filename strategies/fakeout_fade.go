package strategies

import (
	"fmt"

	"github.com/alexherrero/sherwood/backend/models"
)

// FakeoutFade looks for a false breakout: a candle that pokes beyond the
// prior N-bar high/low intrabar, then closes back inside the range. That
// rejection is faded in the opposite direction.
type FakeoutFade struct {
	*BaseStrategy
	LookbackPeriod int
}

// NewFakeoutFade creates the strategy with its default tuning.
func NewFakeoutFade() *FakeoutFade {
	return &FakeoutFade{BaseStrategy: NewBaseStrategy("fakeout_fade"), LookbackPeriod: 20}
}

func (s *FakeoutFade) Style() models.RegimeStyle { return models.RegimeRange }
func (s *FakeoutFade) MinCandles() int           { return s.LookbackPeriod + 1 }

func (s *FakeoutFade) Evaluate(candles []models.Candle) *models.Signal {
	if len(candles) < s.MinCandles() {
		return nil
	}
	n := len(candles)
	rangeHigh, rangeLow := -1.0, -1.0
	for i := n - 1 - s.LookbackPeriod; i < n-1; i++ {
		if rangeHigh < 0 || candles[i].High > rangeHigh {
			rangeHigh = candles[i].High
		}
		if rangeLow < 0 || candles[i].Low < rangeLow {
			rangeLow = candles[i].Low
		}
	}

	last := candles[n-1]
	meta := map[string]interface{}{"range_high": rangeHigh, "range_low": rangeLow}

	pokedAboveAndRejected := last.High > rangeHigh && last.Close <= rangeHigh
	pokedBelowAndRejected := last.Low < rangeLow && last.Close >= rangeLow

	if pokedAboveAndRejected {
		overshoot := (last.High - rangeHigh) / rangeHigh * 10000
		confidence := clampConfidence(45 + overshoot*2)
		return signal(s.Name(), s.Style(), models.OrderSideSell, confidence,
			fmt.Sprintf("faked breakout above %.2f, closed back inside", rangeHigh), last, meta)
	}
	if pokedBelowAndRejected {
		overshoot := (rangeLow - last.Low) / rangeLow * 10000
		confidence := clampConfidence(45 + overshoot*2)
		return signal(s.Name(), s.Style(), models.OrderSideBuy, confidence,
			fmt.Sprintf("faked breakdown below %.2f, closed back inside", rangeLow), last, meta)
	}
	return nil
}
