package strategies

import (
	"fmt"
	"math"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/utils/indicators"
)

// MACDTrendFollower is an ALWAYS strategy: it buys on a bullish MACD/signal
// crossover and sells on the mirror cross, independent of the selector's
// regime call. Kept alongside the named family as an additional trend
// confirmation vote.
type MACDTrendFollower struct {
	*BaseStrategy
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// NewMACDTrendFollower creates the strategy with its default periods.
func NewMACDTrendFollower() *MACDTrendFollower {
	return &MACDTrendFollower{
		BaseStrategy: NewBaseStrategy("macd_trend_follower"),
		FastPeriod:   12,
		SlowPeriod:   26,
		SignalPeriod: 9,
	}
}

func (s *MACDTrendFollower) Style() models.RegimeStyle { return models.RegimeAlways }
func (s *MACDTrendFollower) MinCandles() int           { return s.SlowPeriod + s.SignalPeriod + 1 }

func (s *MACDTrendFollower) Evaluate(candles []models.Candle) *models.Signal {
	if len(candles) < s.MinCandles() {
		return nil
	}
	c := closes(candles)
	macdLine, signalLine, _ := indicators.MACD(c, s.FastPeriod, s.SlowPeriod, s.SignalPeriod)

	lastIdx := len(c) - 1
	prevIdx := lastIdx - 1
	currentMACD, currentSignal := macdLine[lastIdx], signalLine[lastIdx]
	prevMACD, prevSignal := macdLine[prevIdx], signalLine[prevIdx]

	if math.IsNaN(currentMACD) || math.IsNaN(currentSignal) || math.IsNaN(prevMACD) || math.IsNaN(prevSignal) {
		return nil
	}

	last := candles[lastIdx]
	meta := map[string]interface{}{"macd": currentMACD, "signal": currentSignal}

	if prevMACD <= prevSignal && currentMACD > currentSignal {
		return signal(s.Name(), s.Style(), models.OrderSideBuy, 65,
			fmt.Sprintf("bullish MACD crossover (%.4f > %.4f)", currentMACD, currentSignal), last, meta)
	}
	if prevMACD >= prevSignal && currentMACD < currentSignal {
		return signal(s.Name(), s.Style(), models.OrderSideSell, 65,
			fmt.Sprintf("bearish MACD crossover (%.4f < %.4f)", currentMACD, currentSignal), last, meta)
	}
	return nil
}
