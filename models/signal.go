package models

import "time"

// SignalType is the coarse directional call a strategy makes.
type SignalType string

const (
	// SignalBuy indicates a long entry candidate.
	SignalBuy SignalType = "buy"
	// SignalSell indicates a short entry candidate.
	SignalSell SignalType = "sell"
	// SignalHold indicates no actionable edge was found.
	SignalHold SignalType = "hold"
)

// SignalStrength is a coarse confidence bucket, kept alongside the
// numeric Confidence score for display and legacy strategy compatibility.
type SignalStrength string

const (
	SignalStrengthWeak     SignalStrength = "weak"
	SignalStrengthModerate SignalStrength = "moderate"
	SignalStrengthStrong   SignalStrength = "strong"
)

// RegimeStyle is the selector's regime classification, and also the
// "style" a strategy declares itself native to (OPEN strategies only run
// during the opening window, TREND/RANGE strategies run when the selector
// picks that regime, and ALWAYS strategies ignore the selector entirely).
type RegimeStyle string

const (
	RegimeOpen  RegimeStyle = "OPEN"
	RegimeTrend RegimeStyle = "TREND"
	RegimeRange RegimeStyle = "RANGE"
	// RegimeAlways is not a selector output; it marks a strategy as always
	// active regardless of the current regime.
	RegimeAlways RegimeStyle = "ALWAYS"
)

// Signal is the tagged variant a strategy emits for one candle close: a
// directional call with confidence, reason, and the candle context it was
// produced from. Strategies must treat Candle as a read-only snapshot.
type Signal struct {
	// Legacy/display fields, kept from the crossover-era signal shape.
	Symbol       string         `json:"symbol"`
	Type         SignalType     `json:"type"`
	Strength     SignalStrength `json:"strength"`
	Price        float64        `json:"price"`
	Quantity     float64        `json:"quantity,omitempty"`
	StopLoss     float64        `json:"stop_loss,omitempty"`
	TakeProfit   float64        `json:"take_profit,omitempty"`
	Reason       string         `json:"reason"`
	StrategyName string         `json:"strategy_name"`

	// Fields required by the admission pipeline.
	StrategyID       string      `json:"strategy_id"`
	Style            RegimeStyle `json:"style"`
	Side             OrderSide   `json:"side"`
	Confidence       float64     `json:"confidence"`
	InstrumentToken  int64       `json:"instrument_token"`
	Candle           Candle      `json:"candle"`
	Regime           RegimeStyle `json:"regime"`
	ProducedAt       time.Time   `json:"produced_at"`
	Meta             map[string]interface{} `json:"meta,omitempty"`
}

// IsActionable reports whether the signal carries a tradable direction.
func (s Signal) IsActionable() bool {
	return s.Type == SignalBuy || s.Type == SignalSell
}
