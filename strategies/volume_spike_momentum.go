package strategies

import (
	"fmt"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/utils/indicators"
)

// VolumeSpikeMomentum fires on a large relative-volume bar that closes in
// the upper (or lower) portion of its own range, treating the combination
// as evidence of aggressive one-sided participation.
type VolumeSpikeMomentum struct {
	*BaseStrategy
	VolumePeriod  int
	MinRelVolume  float64
	ClosePosition float64
}

// NewVolumeSpikeMomentum creates the strategy with its default tuning.
func NewVolumeSpikeMomentum() *VolumeSpikeMomentum {
	return &VolumeSpikeMomentum{
		BaseStrategy:  NewBaseStrategy("volume_spike_momentum"),
		VolumePeriod:  20,
		MinRelVolume:  2.0,
		ClosePosition: 0.75,
	}
}

func (s *VolumeSpikeMomentum) Style() models.RegimeStyle { return models.RegimeAlways }
func (s *VolumeSpikeMomentum) MinCandles() int           { return s.VolumePeriod + 1 }

func (s *VolumeSpikeMomentum) Evaluate(candles []models.Candle) *models.Signal {
	if len(candles) < s.MinCandles() {
		return nil
	}
	n := len(candles)
	relVol := indicators.RelativeVolume(volumes(candles), s.VolumePeriod)
	curRelVol := relVol[n-1]
	if curRelVol < s.MinRelVolume {
		return nil
	}

	last := candles[n-1]
	rng := last.High - last.Low
	if rng <= 0 {
		return nil
	}
	closePos := (last.Close - last.Low) / rng
	meta := map[string]interface{}{"rel_volume": curRelVol, "close_position": closePos}

	confidence := clampConfidence(50 + (curRelVol-s.MinRelVolume)*10)
	if closePos >= s.ClosePosition {
		return signal(s.Name(), s.Style(), models.OrderSideBuy, confidence,
			fmt.Sprintf("%.2fx volume spike, closed in top %.0f%% of range", curRelVol, closePos*100), last, meta)
	}
	if closePos <= 1-s.ClosePosition {
		return signal(s.Name(), s.Style(), models.OrderSideSell, confidence,
			fmt.Sprintf("%.2fx volume spike, closed in bottom %.0f%% of range", curRelVol, (1-closePos)*100), last, meta)
	}
	return nil
}
