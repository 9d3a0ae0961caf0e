package strategies

import (
	"testing"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWickReversal_HammerAfterDeclineBuys(t *testing.T) {
	s := NewWickReversal()
	candles := seriesCandles([]float64{110, 108, 106, 104, 102, 100})
	// Replace the last candle with a hammer: small body, long lower wick.
	last := candles[len(candles)-1]
	last.Open = 100
	last.Close = 100.4
	last.High = 100.5
	last.Low = 97
	candles[len(candles)-1] = last

	sig := s.Evaluate(candles)
	require.NotNil(t, sig)
	assert.Equal(t, models.OrderSideBuy, sig.Side)
}

func TestWickReversal_NoSignalOnSmallWick(t *testing.T) {
	s := NewWickReversal()
	candles := seriesCandles([]float64{110, 108, 106, 104, 102, 100})
	last := candles[len(candles)-1]
	last.Open = 99.5
	last.Close = 100
	last.High = 100.2
	last.Low = 99.3
	candles[len(candles)-1] = last

	sig := s.Evaluate(candles)
	assert.Nil(t, sig)
}
