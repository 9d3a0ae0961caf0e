package backtesting

import (
	"testing"
	"time"

	"github.com/alexherrero/sherwood/backend/market"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *strategies.Registry {
	t.Helper()
	registry := strategies.NewRegistry()
	require.NoError(t, registry.Register(strategies.NewEMACross()))
	return registry
}

func testInstrument() models.Instrument {
	return models.Instrument{
		Token:          738561,
		TradingSymbol:  "TEST",
		Exchange:       "NSE",
		Segment:        "NSE",
		InstrumentType: models.InstrumentEquity,
		TickSize:       0.05,
		LotSize:        1,
	}
}

// TestEngine_NewEngine verifies engine creation.
func TestEngine_NewEngine(t *testing.T) {
	engine := NewEngine(testRegistry(t))
	assert.NotNil(t, engine)
}

// TestEngine_Run_EmptyData verifies error on empty candle data.
func TestEngine_Run_EmptyData(t *testing.T) {
	engine := NewEngine(testRegistry(t))
	cfg := BacktestConfig{
		InstrumentToken: 738561,
		TradingSymbol:   "TEST",
		Exchange:        "NSE",
		IntervalMinutes: 5,
		InitialCapital:  10000,
	}

	_, err := engine.Run(nil, testInstrument(), cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no candle data provided")
}

// TestEngine_Run_BasicBacktest verifies a replay over one session produces a
// complete result with metrics and an equity curve.
func TestEngine_Run_BasicBacktest(t *testing.T) {
	engine := NewEngine(testRegistry(t))

	candles := generateSessionCandles(75, 738561, 5)
	cfg := BacktestConfig{
		InstrumentToken: 738561,
		TradingSymbol:   "TEST",
		Exchange:        "NSE",
		IntervalMinutes: 5,
		StartDate:       candles[0].Timestamp,
		EndDate:         candles[len(candles)-1].Timestamp,
		InitialCapital:  10000,
	}

	result, err := engine.Run(candles, testInstrument(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.NotEmpty(t, result.ID)
	assert.NotNil(t, result.Metrics)
	assert.Len(t, result.EquityCurve, len(candles))
}

// TestEngine_Run_EquityCurve verifies every bar produces a mark-to-market
// equity point and equity never goes non-positive absent any fills.
func TestEngine_Run_EquityCurve(t *testing.T) {
	engine := NewEngine(testRegistry(t))

	candles := generateSessionCandles(30, 738561, 5)
	cfg := BacktestConfig{
		InstrumentToken: 738561,
		TradingSymbol:   "TEST",
		Exchange:        "NSE",
		IntervalMinutes: 5,
		StartDate:       candles[0].Timestamp,
		EndDate:         candles[len(candles)-1].Timestamp,
		InitialCapital:  10000,
	}

	result, err := engine.Run(candles, testInstrument(), cfg)
	require.NoError(t, err)
	assert.Len(t, result.EquityCurve, len(candles))

	for _, ep := range result.EquityCurve {
		assert.True(t, ep.Equity > 0, "equity should stay positive")
	}
}

// TestEngine_Run_ResultContainsConfig verifies config is stored in result.
func TestEngine_Run_ResultContainsConfig(t *testing.T) {
	engine := NewEngine(testRegistry(t))

	candles := generateSessionCandles(30, 738561, 5)
	cfg := BacktestConfig{
		InstrumentToken: 738561,
		TradingSymbol:   "AAPL",
		Exchange:        "NSE",
		IntervalMinutes: 5,
		StartDate:       candles[0].Timestamp,
		EndDate:         candles[len(candles)-1].Timestamp,
		InitialCapital:  50000,
	}

	result, err := engine.Run(candles, testInstrument(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", result.Config.TradingSymbol)
	assert.Equal(t, 50000.0, result.Config.InitialCapital)
}

// TestEngine_Run_UniqueIDs verifies each backtest gets a unique ID.
func TestEngine_Run_UniqueIDs(t *testing.T) {
	engine := NewEngine(testRegistry(t))
	candles := generateSessionCandles(30, 738561, 5)
	cfg := BacktestConfig{
		InstrumentToken: 738561,
		TradingSymbol:   "TEST",
		Exchange:        "NSE",
		IntervalMinutes: 5,
		StartDate:       candles[0].Timestamp,
		EndDate:         candles[len(candles)-1].Timestamp,
		InitialCapital:  10000,
	}

	result1, err := engine.Run(candles, testInstrument(), cfg)
	require.NoError(t, err)
	result2, err := engine.Run(candles, testInstrument(), cfg)
	require.NoError(t, err)

	assert.NotEqual(t, result1.ID, result2.ID)
}

// TestEngine_Run_Timestamps verifies timing metadata.
func TestEngine_Run_Timestamps(t *testing.T) {
	engine := NewEngine(testRegistry(t))
	candles := generateSessionCandles(30, 738561, 5)
	cfg := BacktestConfig{
		InstrumentToken: 738561,
		TradingSymbol:   "TEST",
		Exchange:        "NSE",
		IntervalMinutes: 5,
		StartDate:       candles[0].Timestamp,
		EndDate:         candles[len(candles)-1].Timestamp,
		InitialCapital:  10000,
	}

	before := time.Now()
	result, err := engine.Run(candles, testInstrument(), cfg)
	require.NoError(t, err)
	after := time.Now()

	assert.True(t, result.StartedAt.After(before) || result.StartedAt.Equal(before))
	assert.True(t, result.CompletedAt.Before(after) || result.CompletedAt.Equal(after))
	assert.True(t, result.CompletedAt.After(result.StartedAt) || result.CompletedAt.Equal(result.StartedAt))
}

// generateSessionCandles creates `count` candles at intervalMinutes spacing
// starting at the NSE session open (09:15 IST) on a fixed weekday, with a
// mild uptrend so strategies have something to evaluate against.
func generateSessionCandles(count int, token int64, intervalMinutes int) []models.Candle {
	start := time.Date(2026, 7, 27, 9, 15, 0, 0, market.IST) // a Monday
	candles := make([]models.Candle, count)
	basePrice := 100.0

	for i := 0; i < count; i++ {
		price := basePrice + float64(i%5)*0.5
		candles[i] = models.Candle{
			InstrumentToken: token,
			IntervalMinutes: intervalMinutes,
			Timestamp:       start.Add(time.Duration(i*intervalMinutes) * time.Minute),
			Open:            price,
			High:            price + 1,
			Low:             price - 1,
			Close:           price,
			Volume:          1000,
			Source:          models.CandleSourceHistorical,
		}
	}
	return candles
}
