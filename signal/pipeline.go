package signal

import (
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/strategies"
	"github.com/rs/zerolog"
)

// PipelineConfig holds the SignalPipeline's per-run tunables from spec.md
// §4.2.
type PipelineConfig struct {
	// MinCandles is the shortest candle history required before any
	// strategy is invoked, regardless of individual strategy minimums.
	MinCandles int
	// AllowSynthetic permits emitting a signal produced from a synthetic
	// (gap-filled) terminal candle; normally these are rejected.
	AllowSynthetic bool
	// UseSelector enables regime-based strategy subsetting; when false,
	// every registered strategy is evaluated regardless of style.
	UseSelector bool
}

// DefaultPipelineConfig matches spec.md §4.2's stated default of 50
// candles.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{MinCandles: 50, UseSelector: true}
}

// Candidate is one strategy's raw output, kept for telemetry regardless of
// whether it ultimately wins.
type Candidate struct {
	Signal models.Signal
	Regime models.RegimeStyle
}

// Result is what the pipeline emits for one candle close: the winning
// signal (nil if no strategy fired) plus every candidate considered, for
// telemetry.
type Result struct {
	Winner     *models.Signal
	Candidates []Candidate
	Regime     models.RegimeStyle
	Rejected   string
}

// Pipeline evaluates the active strategy set on every candle close and
// selects the single highest-confidence signal to forward to the trade
// manager.
type Pipeline struct {
	cfg      PipelineConfig
	registry *strategies.Registry
	selector *Selector
	log      zerolog.Logger
}

// NewPipeline creates a Pipeline over registry, using selector to derive
// the active regime (ignored when cfg.UseSelector is false).
func NewPipeline(cfg PipelineConfig, registry *strategies.Registry, selector *Selector, log zerolog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, registry: registry, selector: selector, log: log}
}

// Evaluate runs the admission steps of spec.md §4.2 against one interval's
// candle history (oldest first, most recent last) and returns the pipeline
// result.
func (p *Pipeline) Evaluate(candles []models.Candle) Result {
	if len(candles) < p.cfg.MinCandles {
		return Result{Rejected: "insufficient_candle_history"}
	}

	last := candles[len(candles)-1]
	if !p.cfg.AllowSynthetic && last.Source == models.CandleSourceSynthetic {
		return Result{Rejected: "synthetic_terminal_candle"}
	}

	regime := models.RegimeRange
	active := p.registry.Ordered()
	if p.cfg.UseSelector && p.selector != nil {
		regime = p.selector.Classify(candles)
		active = p.registry.ForStyle(regime)
	}

	var candidates []Candidate
	var winner *models.Signal
	for _, strat := range active {
		if len(candles) < strat.MinCandles() {
			continue
		}
		sig := strat.Evaluate(candles)
		if sig == nil {
			continue
		}
		sig.Regime = regime
		p.log.Debug().Str("strategy", strat.Name()).Float64("confidence", sig.Confidence).Str("side", string(sig.Side)).Msg("signal: candidate")
		candidates = append(candidates, Candidate{Signal: *sig, Regime: regime})

		if winner == nil || sig.Confidence > winner.Confidence {
			winner = sig
		}
		// Equal confidence: keep the earlier (already-selected) strategy,
		// since active is in declaration order — ties favor declaration
		// order per spec.md §4.2 point 4.
	}

	return Result{Winner: winner, Candidates: candidates, Regime: regime}
}
