package strategies

import (
	"fmt"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/utils/indicators"
)

// EMACross is a trend-following crossover: buy when the fast EMA crosses
// above the slow EMA, sell on the mirror cross. Confidence scales with the
// separation between the two EMAs relative to price.
type EMACross struct {
	*BaseStrategy
	FastPeriod int
	SlowPeriod int
}

// NewEMACross creates an EMACross strategy with the standard 9/21 periods.
func NewEMACross() *EMACross {
	return &EMACross{
		BaseStrategy: NewBaseStrategy("ema_cross"),
		FastPeriod:   9,
		SlowPeriod:   21,
	}
}

func (s *EMACross) Style() models.RegimeStyle { return models.RegimeTrend }
func (s *EMACross) MinCandles() int           { return s.SlowPeriod + 2 }

func (s *EMACross) Evaluate(candles []models.Candle) *models.Signal {
	if len(candles) < s.MinCandles() {
		return nil
	}
	c := closes(candles)
	fast := indicators.EMA(c, s.FastPeriod)
	slow := indicators.EMA(c, s.SlowPeriod)
	n := len(c)

	curFast, curSlow := fast[n-1], slow[n-1]
	prevFast, prevSlow := fast[n-2], slow[n-2]
	last := candles[n-1]

	sep := (curFast - curSlow) / curSlow * 100
	confidence := clampConfidence(50 + sep*40)

	if prevFast <= prevSlow && curFast > curSlow {
		return signal(s.Name(), s.Style(), models.OrderSideBuy, confidence,
			fmt.Sprintf("EMA%d crossed above EMA%d", s.FastPeriod, s.SlowPeriod), last,
			map[string]interface{}{"fast_ema": curFast, "slow_ema": curSlow})
	}
	if prevFast >= prevSlow && curFast < curSlow {
		return signal(s.Name(), s.Style(), models.OrderSideSell, confidence,
			fmt.Sprintf("EMA%d crossed below EMA%d", s.FastPeriod, s.SlowPeriod), last,
			map[string]interface{}{"fast_ema": curFast, "slow_ema": curSlow})
	}
	return nil
}
