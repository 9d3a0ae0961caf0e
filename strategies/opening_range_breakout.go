package strategies

import (
	"fmt"
	"time"

	"github.com/alexherrero/sherwood/backend/market"
	"github.com/alexherrero/sherwood/backend/models"
)

// OpeningRangeBreakout tracks the high/low of the first RangeMinutes after
// the session opens, then trades a breakout beyond that range with a
// relative-volume confirmation. Only active in the OPEN regime window.
type OpeningRangeBreakout struct {
	*BaseStrategy
	RangeMinutes  int
	MinRelVolume  float64
	VolumePeriod  int
}

// NewOpeningRangeBreakout creates the strategy with its default tuning: a
// 15-minute opening range and a 1.2x relative-volume confirmation.
func NewOpeningRangeBreakout() *OpeningRangeBreakout {
	return &OpeningRangeBreakout{
		BaseStrategy: NewBaseStrategy("opening_range_breakout"),
		RangeMinutes: 15,
		MinRelVolume: 1.2,
		VolumePeriod: 10,
	}
}

func (s *OpeningRangeBreakout) Style() models.RegimeStyle { return models.RegimeOpen }
func (s *OpeningRangeBreakout) MinCandles() int           { return s.RangeMinutes + s.VolumePeriod + 1 }

func (s *OpeningRangeBreakout) Evaluate(candles []models.Candle) *models.Signal {
	if len(candles) < s.MinCandles() {
		return nil
	}
	last := candles[len(candles)-1]
	sessionStart := sessionStartIndex(candles)

	nowIST := last.Timestamp.In(market.IST)
	sessionOpenAt := candles[sessionStart].Timestamp.In(market.IST)
	rangeCloseAt := sessionOpenAt.Add(time.Duration(s.RangeMinutes) * time.Minute)

	if !nowIST.After(rangeCloseAt) {
		// Still inside the opening range window; nothing to break out of yet.
		return nil
	}

	rangeHigh, rangeLow := -1.0, -1.0
	for i := sessionStart; i < len(candles); i++ {
		ts := candles[i].Timestamp.In(market.IST)
		if ts.After(rangeCloseAt) {
			break
		}
		if rangeHigh < 0 || candles[i].High > rangeHigh {
			rangeHigh = candles[i].High
		}
		if rangeLow < 0 || candles[i].Low < rangeLow {
			rangeLow = candles[i].Low
		}
	}
	if rangeHigh < 0 || rangeLow < 0 {
		return nil
	}

	vol := volumes(candles)
	relVol := 1.0
	if len(vol) > s.VolumePeriod {
		var sum float64
		for i := len(vol) - 1 - s.VolumePeriod; i < len(vol)-1; i++ {
			sum += vol[i]
		}
		avg := sum / float64(s.VolumePeriod)
		if avg > 0 {
			relVol = vol[len(vol)-1] / avg
		}
	}
	if relVol < s.MinRelVolume {
		return nil
	}

	meta := map[string]interface{}{"range_high": rangeHigh, "range_low": rangeLow, "rel_volume": relVol}

	if last.Close > rangeHigh {
		confidence := clampConfidence(50 + (relVol-1)*20)
		return signal(s.Name(), s.Style(), models.OrderSideBuy, confidence,
			fmt.Sprintf("opening range breakout above %.2f, rel vol %.2fx", rangeHigh, relVol), last, meta)
	}
	if last.Close < rangeLow {
		confidence := clampConfidence(50 + (relVol-1)*20)
		return signal(s.Name(), s.Style(), models.OrderSideSell, confidence,
			fmt.Sprintf("opening range breakdown below %.2f, rel vol %.2fx", rangeLow, relVol), last, meta)
	}
	return nil
}
