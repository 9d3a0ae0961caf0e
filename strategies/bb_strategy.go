package strategies

import (
	"fmt"
	"math"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/utils/indicators"
)

// BollingerSqueezeBreakout watches for a contracting Bollinger bandwidth
// (a "squeeze") followed by a close outside the bands, and trades the
// breakout direction.
type BollingerSqueezeBreakout struct {
	*BaseStrategy
	Period           int
	StdDevMultiplier float64
	SqueezeLookback  int
}

// NewBollingerSqueezeBreakout creates the strategy with its default tuning.
func NewBollingerSqueezeBreakout() *BollingerSqueezeBreakout {
	return &BollingerSqueezeBreakout{
		BaseStrategy:     NewBaseStrategy("bb_squeeze_breakout"),
		Period:           20,
		StdDevMultiplier: 2.0,
		SqueezeLookback:  20,
	}
}

func (s *BollingerSqueezeBreakout) Style() models.RegimeStyle { return models.RegimeRange }
func (s *BollingerSqueezeBreakout) MinCandles() int           { return s.Period + s.SqueezeLookback }

func (s *BollingerSqueezeBreakout) Evaluate(candles []models.Candle) *models.Signal {
	if len(candles) < s.MinCandles() {
		return nil
	}
	c := closes(candles)
	upper, middle, lower := indicators.BollingerBands(c, s.Period, s.StdDevMultiplier)
	n := len(c)

	bandwidth := make([]float64, n)
	for i := range c {
		if math.IsNaN(middle[i]) || middle[i] == 0 {
			bandwidth[i] = math.NaN()
			continue
		}
		bandwidth[i] = (upper[i] - lower[i]) / middle[i]
	}

	curUpper, curLower := upper[n-1], lower[n-1]
	if math.IsNaN(curUpper) || math.IsNaN(curLower) {
		return nil
	}

	minBandwidth := math.Inf(1)
	for i := n - s.SqueezeLookback; i < n-1; i++ {
		if math.IsNaN(bandwidth[i]) {
			continue
		}
		if bandwidth[i] < minBandwidth {
			minBandwidth = bandwidth[i]
		}
	}
	if math.IsInf(minBandwidth, 1) {
		return nil
	}

	squeezeRatio := bandwidth[n-1] / minBandwidth
	if squeezeRatio > 1.5 {
		// Bands already well expanded; the squeeze has played out.
		return nil
	}

	last := candles[n-1]
	meta := map[string]interface{}{"bandwidth": bandwidth[n-1], "squeeze_min": minBandwidth}

	if last.Close > curUpper {
		confidence := clampConfidence(55 + (last.Close-curUpper)/curUpper*1000)
		return signal(s.Name(), s.Style(), models.OrderSideBuy, confidence,
			fmt.Sprintf("squeeze breakout above upper band %.2f", curUpper), last, meta)
	}
	if last.Close < curLower {
		confidence := clampConfidence(55 + (curLower-last.Close)/curLower*1000)
		return signal(s.Name(), s.Style(), models.OrderSideSell, confidence,
			fmt.Sprintf("squeeze breakdown below lower band %.2f", curLower), last, meta)
	}
	return nil
}
