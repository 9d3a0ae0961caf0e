package strategies

import (
	"fmt"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/utils/indicators"
)

// EMAPullbackReclaim trades continuation: in an established EMA trend, it
// waits for price to pull back and touch the EMA, then fires the moment a
// candle closes back on the trend side of it.
type EMAPullbackReclaim struct {
	*BaseStrategy
	EMAPeriod    int
	TrendPeriod  int
	TouchBps     float64
}

// NewEMAPullbackReclaim creates the strategy with its default tuning.
func NewEMAPullbackReclaim() *EMAPullbackReclaim {
	return &EMAPullbackReclaim{
		BaseStrategy: NewBaseStrategy("ema_pullback_reclaim"),
		EMAPeriod:    20,
		TrendPeriod:  10,
		TouchBps:     15,
	}
}

func (s *EMAPullbackReclaim) Style() models.RegimeStyle { return models.RegimeTrend }
func (s *EMAPullbackReclaim) MinCandles() int           { return s.EMAPeriod + s.TrendPeriod + 1 }

func (s *EMAPullbackReclaim) Evaluate(candles []models.Candle) *models.Signal {
	if len(candles) < s.MinCandles() {
		return nil
	}
	c := closes(candles)
	ema := indicators.EMA(c, s.EMAPeriod)
	n := len(c)

	curEMA := ema[n-1]
	slopeEMA := ema[n-1] - ema[n-1-s.TrendPeriod]

	last := candles[n-1]
	prev := candles[n-2]
	meta := map[string]interface{}{"ema": curEMA, "ema_slope": slopeEMA}

	touchedFromBelow := prev.Low <= curEMA || withinBps(prev.Low, curEMA, s.TouchBps)
	touchedFromAbove := prev.High >= curEMA || withinBps(prev.High, curEMA, s.TouchBps)

	if slopeEMA > 0 && touchedFromBelow && last.Close > curEMA {
		confidence := clampConfidence(55 + slopeEMA/curEMA*1000)
		return signal(s.Name(), s.Style(), models.OrderSideBuy, confidence,
			fmt.Sprintf("pullback to rising EMA%d (%.2f) reclaimed", s.EMAPeriod, curEMA), last, meta)
	}
	if slopeEMA < 0 && touchedFromAbove && last.Close < curEMA {
		confidence := clampConfidence(55 + -slopeEMA/curEMA*1000)
		return signal(s.Name(), s.Style(), models.OrderSideSell, confidence,
			fmt.Sprintf("pullback to falling EMA%d (%.2f) rejected", s.EMAPeriod, curEMA), last, meta)
	}
	return nil
}
