package signal

import (
	"testing"
	"time"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/strategies"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseTime() time.Time {
	return time.Date(2026, 7, 30, 9, 15, 0, 0, time.UTC)
}

func TestPipeline_RejectsInsufficientHistory(t *testing.T) {
	registry, err := strategies.NewDefaultRegistry()
	require.NoError(t, err)
	p := NewPipeline(PipelineConfig{MinCandles: 50, UseSelector: true}, registry, NewSelector(DefaultSelectorConfig()), zerolog.Nop())

	result := p.Evaluate(candlesAt(baseTime(), []float64{100, 101}))
	assert.Equal(t, "insufficient_candle_history", result.Rejected)
	assert.Nil(t, result.Winner)
}

func TestPipeline_RejectsSyntheticTerminalCandleByDefault(t *testing.T) {
	registry, err := strategies.NewDefaultRegistry()
	require.NoError(t, err)
	p := NewPipeline(PipelineConfig{MinCandles: 5, UseSelector: false}, registry, nil, zerolog.Nop())

	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 100
	}
	candles := candlesAt(baseTime(), closes)
	candles[len(candles)-1].Source = models.CandleSourceSynthetic

	result := p.Evaluate(candles)
	assert.Equal(t, "synthetic_terminal_candle", result.Rejected)
}

func TestPipeline_PicksHighestConfidenceCandidate(t *testing.T) {
	registry := strategies.NewRegistry()
	require.NoError(t, registry.Register(fakeStrategy{name: "low", confidence: 30}))
	require.NoError(t, registry.Register(fakeStrategy{name: "high", confidence: 90}))

	p := NewPipeline(PipelineConfig{MinCandles: 1, UseSelector: false}, registry, nil, zerolog.Nop())
	result := p.Evaluate(candlesAt(baseTime(), []float64{100, 101, 102}))

	require.NotNil(t, result.Winner)
	assert.Equal(t, "high", result.Winner.StrategyID)
	assert.Len(t, result.Candidates, 2)
}

type fakeStrategy struct {
	name       string
	confidence float64
}

func (f fakeStrategy) Name() string             { return f.name }
func (f fakeStrategy) Style() models.RegimeStyle { return models.RegimeAlways }
func (f fakeStrategy) MinCandles() int          { return 1 }
func (f fakeStrategy) Evaluate(c []models.Candle) *models.Signal {
	last := c[len(c)-1]
	return &models.Signal{
		StrategyID: f.name,
		Side:       models.OrderSideBuy,
		Confidence: f.confidence,
		Candle:     last,
	}
}
