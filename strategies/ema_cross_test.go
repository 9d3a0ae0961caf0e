package strategies

import (
	"testing"
	"time"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seriesCandles(closes []float64) []models.Candle {
	base := time.Date(2026, 7, 30, 9, 15, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			InstrumentToken: 1,
			IntervalMinutes: 1,
			Timestamp:       base.Add(time.Duration(i) * time.Minute),
			Open:            c,
			High:            c + 0.5,
			Low:             c - 0.5,
			Close:           c,
			Volume:          1000,
		}
	}
	return out
}

func TestEMACross_BuysOnGoldenCross(t *testing.T) {
	s := NewEMACross()
	closes := make([]float64, 0, 30)
	for i := 0; i < 29; i++ {
		closes = append(closes, 100)
	}
	closes = append(closes, 103)
	candles := seriesCandles(closes)
	require.GreaterOrEqual(t, len(candles), s.MinCandles())

	sig := s.Evaluate(candles)
	require.NotNil(t, sig)
	assert.Equal(t, models.OrderSideBuy, sig.Side)
	assert.Equal(t, "ema_cross", sig.StrategyID)
}

func TestEMACross_NoSignalWhenFlat(t *testing.T) {
	s := NewEMACross()
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	sig := s.Evaluate(seriesCandles(closes))
	assert.Nil(t, sig)
}

func TestEMACross_NilWhenNotEnoughCandles(t *testing.T) {
	s := NewEMACross()
	sig := s.Evaluate(seriesCandles([]float64{100, 101, 102}))
	assert.Nil(t, sig)
}
