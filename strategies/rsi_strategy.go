package strategies

import (
	"fmt"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/utils/indicators"
)

// RSIFadeVWAPFilter fades RSI extremes, but only when price is also
// extended away from session VWAP in the same direction — without the VWAP
// filter, RSI alone fades too many genuine trend moves.
type RSIFadeVWAPFilter struct {
	*BaseStrategy
	Period              int
	OverboughtThreshold float64
	OversoldThreshold   float64
	VWAPExtensionBps    float64
}

// NewRSIFadeVWAPFilter creates the strategy with its default tuning.
func NewRSIFadeVWAPFilter() *RSIFadeVWAPFilter {
	return &RSIFadeVWAPFilter{
		BaseStrategy:        NewBaseStrategy("rsi_fade_vwap_filter"),
		Period:              14,
		OverboughtThreshold: 70.0,
		OversoldThreshold:   30.0,
		VWAPExtensionBps:    30,
	}
}

func (s *RSIFadeVWAPFilter) Style() models.RegimeStyle { return models.RegimeRange }
func (s *RSIFadeVWAPFilter) MinCandles() int           { return s.Period + 1 }

func (s *RSIFadeVWAPFilter) Evaluate(candles []models.Candle) *models.Signal {
	if len(candles) < s.MinCandles() {
		return nil
	}
	c := closes(candles)
	rsiValues := indicators.RSI(c, s.Period)
	currentRSI := rsiValues[len(rsiValues)-1]

	start := sessionStartIndex(candles)
	vwap := indicators.VWAP(typicalPrices(candles[start:]), volumes(candles[start:]))
	currentVWAP := vwap[len(vwap)-1]

	last := candles[len(candles)-1]
	meta := map[string]interface{}{"rsi": currentRSI, "vwap": currentVWAP}

	if currentRSI < s.OversoldThreshold && last.Close < currentVWAP && !withinBps(last.Close, currentVWAP, s.VWAPExtensionBps) {
		confidence := clampConfidence(100 - currentRSI)
		return signal(s.Name(), s.Style(), models.OrderSideBuy, confidence,
			fmt.Sprintf("RSI %.1f oversold, %.0f bps below VWAP", currentRSI, (currentVWAP-last.Close)/currentVWAP*10000), last, meta)
	}
	if currentRSI > s.OverboughtThreshold && last.Close > currentVWAP && !withinBps(last.Close, currentVWAP, s.VWAPExtensionBps) {
		confidence := clampConfidence(currentRSI)
		return signal(s.Name(), s.Style(), models.OrderSideSell, confidence,
			fmt.Sprintf("RSI %.1f overbought, %.0f bps above VWAP", currentRSI, (last.Close-currentVWAP)/currentVWAP*10000), last, meta)
	}
	return nil
}
