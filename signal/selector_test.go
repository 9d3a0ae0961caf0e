package signal

import (
	"testing"
	"time"

	"github.com/alexherrero/sherwood/backend/market"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/stretchr/testify/assert"
)

func candlesAt(base time.Time, closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			InstrumentToken: 1,
			IntervalMinutes: 1,
			Timestamp:       base.Add(time.Duration(i) * time.Minute),
			Open:            c,
			High:            c + 1,
			Low:             c - 1,
			Close:           c,
			Volume:          1000,
		}
	}
	return out
}

func TestSelector_OpenRegimeDuringOpeningWindow(t *testing.T) {
	s := NewSelector(DefaultSelectorConfig())
	base := time.Date(2026, 7, 30, 9, 15, 0, 0, market.IST)
	candles := candlesAt(base, []float64{100, 100, 100, 100, 100})
	assert.Equal(t, models.RegimeOpen, s.Classify(candles))
}

func TestSelector_TrendRegimeAfterOpeningWindow(t *testing.T) {
	s := NewSelector(DefaultSelectorConfig())
	base := time.Date(2026, 7, 30, 9, 15, 0, 0, market.IST)
	closes := make([]float64, 0, 45)
	for i := 0; i < 45; i++ {
		closes = append(closes, 100+float64(i)*0.8)
	}
	candles := candlesAt(base, closes)
	assert.Equal(t, models.RegimeTrend, s.Classify(candles))
}

func TestSelector_RangeRegimeWhenFlat(t *testing.T) {
	s := NewSelector(DefaultSelectorConfig())
	base := time.Date(2026, 7, 30, 9, 15, 0, 0, market.IST)
	closes := make([]float64, 45)
	for i := range closes {
		closes[i] = 100
	}
	candles := candlesAt(base, closes)
	assert.Equal(t, models.RegimeRange, s.Classify(candles))
}
