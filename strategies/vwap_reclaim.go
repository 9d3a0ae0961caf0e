package strategies

import (
	"fmt"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/utils/indicators"
)

// VWAPReclaim trades the moment price crosses back to the trend side of
// session VWAP after having been on the other side, a common intraday
// mean-reversion-to-trend signal.
type VWAPReclaim struct {
	*BaseStrategy
}

// NewVWAPReclaim creates the strategy.
func NewVWAPReclaim() *VWAPReclaim {
	return &VWAPReclaim{BaseStrategy: NewBaseStrategy("vwap_reclaim")}
}

func (s *VWAPReclaim) Style() models.RegimeStyle { return models.RegimeRange }
func (s *VWAPReclaim) MinCandles() int           { return 5 }

func (s *VWAPReclaim) Evaluate(candles []models.Candle) *models.Signal {
	if len(candles) < s.MinCandles() {
		return nil
	}
	start := sessionStartIndex(candles)
	if len(candles)-start < 2 {
		return nil
	}
	vwap := indicators.VWAP(typicalPrices(candles[start:]), volumes(candles[start:]))
	n := len(vwap)

	curVWAP := vwap[n-1]
	prevVWAP := vwap[n-2]
	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	meta := map[string]interface{}{"vwap": curVWAP}

	if prev.Close <= prevVWAP && last.Close > curVWAP {
		confidence := clampConfidence(50 + (last.Close-curVWAP)/curVWAP*2000)
		return signal(s.Name(), s.Style(), models.OrderSideBuy, confidence,
			fmt.Sprintf("reclaimed VWAP %.2f from below", curVWAP), last, meta)
	}
	if prev.Close >= prevVWAP && last.Close < curVWAP {
		confidence := clampConfidence(50 + (curVWAP-last.Close)/curVWAP*2000)
		return signal(s.Name(), s.Style(), models.OrderSideSell, confidence,
			fmt.Sprintf("lost VWAP %.2f from above", curVWAP), last, meta)
	}
	return nil
}
