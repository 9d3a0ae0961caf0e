// Package backtesting replays historical candles through the live signal
// and execution stack — signal.Pipeline, execution.TradeManager, and the
// paper broker — so a backtest exercises the exact same admission and exit
// logic the live engine runs, instead of a separate simulated loop.
package backtesting

import (
	"context"
	"fmt"
	"time"

	"github.com/alexherrero/sherwood/backend/broker"
	"github.com/alexherrero/sherwood/backend/data"
	"github.com/alexherrero/sherwood/backend/exit"
	"github.com/alexherrero/sherwood/backend/execution"
	"github.com/alexherrero/sherwood/backend/halt"
	"github.com/alexherrero/sherwood/backend/market"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/risk"
	"github.com/alexherrero/sherwood/backend/signal"
	"github.com/alexherrero/sherwood/backend/strategies"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// BacktestConfig holds configuration for a backtest run.
type BacktestConfig struct {
	// InstrumentToken identifies the instrument being replayed.
	InstrumentToken int64
	// TradingSymbol is the ticker symbol, used for display and reports.
	TradingSymbol string
	// Exchange is the instrument's exchange (NSE, NFO, ...).
	Exchange string
	// IntervalMinutes is the candle interval the strategies evaluate on.
	IntervalMinutes int
	// StartDate is the start of the backtest period.
	StartDate time.Time
	// EndDate is the end of the backtest period.
	EndDate time.Time
	// InitialCapital is the starting paper-broker cash balance.
	InitialCapital float64
}

// BacktestResult holds the results of a backtest run.
type BacktestResult struct {
	ID          string
	Config      BacktestConfig
	Metrics     *Metrics
	Trades      []models.Trade
	EquityCurve []EquityPoint
	StartedAt   time.Time
	CompletedAt time.Time
}

// EquityPoint represents mark-to-market equity at a point in time.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Engine replays candles through the production signal/execution stack.
type Engine struct {
	idCounter int
	registry  *strategies.Registry
}

// NewEngine creates a backtest engine over registry, the same strategy
// registry the live engine uses.
func NewEngine(registry *strategies.Registry) *Engine {
	return &Engine{registry: registry}
}

func defaultBacktestExitConfig() exit.Config {
	return exit.Config{
		NoProgressMin:            15,
		NoProgressMfeR:           0.3,
		RequireUnderlyingConfirm: false,

		MaxHoldMin:          180,
		MaxHoldSkipIfPnlR:   0.5,
		MaxHoldSkipIfPeakR:  1.0,
		MaxHoldSkipIfLocked: true,

		BEArmR:                 1.0,
		BEArmCostMult:          1.5,
		EstimatedRoundTripCost: 2,
		BECostMultiplier:       1.5,
		BEBufferTicks:          1,
		TickSize:               0.05,

		TrailArmR:          1.5,
		TrailGapPctPreBE:   0.6,
		TrailGapPctPostBE:  0.4,
		TrailGapMinPts:     0.5,
		TrailGapMaxPts:     10,
		TrailTightenAfterR: 2.5,
		TrailGapPctTight:   0.25,

		StepTicksPreBE:     1,
		StepTicksPostBE:    1,
		AllowTargetTighten: false,

		ProfitLockEnabled: true,
		ProfitLockR:       2.0,
		ProfitLockKeepR:   1.0,

		OptionPremiumPctSL:         30,
		OptionPremiumPctTarget:     60,
		OptionIVCrushDropPct:       25,
		OptionIVSpikeRisePct:       40,
		OptionUnderlyingNeutralBps: 5,
		OptionEarlyWidenWindowMin:  5,
		OptionEarlyWidenMaxRMult:   0.5,
	}
}

func defaultBacktestBreakerConfig() risk.BreakerConfig {
	return risk.BreakerConfig{MaxConsecutiveFailures: 3, MaxFailuresPerHour: 10, CooldownMinutes: 15}
}

// Run replays candles (oldest first, single instrument, single interval)
// through a fresh signal.Pipeline and execution.TradeManager wired against
// an in-memory paper broker and an in-memory SQLite store.
//
// Args:
//   - candles: Historical candle data, oldest first
//   - instrument: The instrument being replayed
//   - cfg: Backtest configuration
//
// Returns:
//   - *BacktestResult: Backtest results and metrics
//   - error: Any error encountered
func (e *Engine) Run(candles []models.Candle, instrument models.Instrument, cfg BacktestConfig) (*BacktestResult, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candle data provided for backtest")
	}

	e.idCounter++
	result := &BacktestResult{
		ID:          fmt.Sprintf("bt-%06d", e.idCounter),
		Config:      cfg,
		Trades:      []models.Trade{},
		EquityCurve: make([]EquityPoint, 0, len(candles)),
		StartedAt:   time.Now(),
	}

	quietLog := zerolog.Nop()

	db, err := data.NewDB(":memory:")
	if err != nil {
		return nil, fmt.Errorf("backtest: open in-memory store: %w", err)
	}
	defer db.Close()

	instrumentRepo := data.NewInstrumentRepo(db)
	if err := instrumentRepo.Upsert(instrument); err != nil {
		return nil, fmt.Errorf("backtest: seed instrument: %w", err)
	}
	tradeStore := data.NewTradeStore(db)

	cal := market.NewCalendarFromHolidays(nil, market.DefaultSessionHours())
	riskEngine := risk.NewEngine(risk.DefaultEngineConfig(), cal)

	governor, err := risk.NewGovernor(risk.DefaultGovernorConfig(), data.NewGovernorStore(db), cfg.StartDate, quietLog)
	if err != nil {
		return nil, fmt.Errorf("backtest: init governor: %w", err)
	}
	optimizer, err := risk.NewOptimizer(risk.DefaultOptimizerConfig(), data.NewOptimizerStore(db), quietLog)
	if err != nil {
		return nil, fmt.Errorf("backtest: init optimizer: %w", err)
	}
	rateLimiter := risk.NewOrderRateLimiter(risk.DefaultRateLimiterConfig())
	breakers := risk.NewBreakerManager(defaultBacktestBreakerConfig(), quietLog)
	haltBus := halt.NewBus(64, quietLog)

	selector := signal.NewSelector(signal.DefaultSelectorConfig())
	pipeline := signal.NewPipeline(signal.DefaultPipelineConfig(), e.registry, selector, quietLog)

	pb := broker.NewPaperBroker(cfg.InitialCapital)
	if err := pb.Connect(); err != nil {
		return nil, fmt.Errorf("backtest: connect paper broker: %w", err)
	}
	if err := pb.Subscribe([]int64{cfg.InstrumentToken}); err != nil {
		return nil, fmt.Errorf("backtest: subscribe instrument: %w", err)
	}

	tradeManager := execution.NewTradeManager(
		execution.DefaultTradeManagerConfig(), defaultBacktestExitConfig(),
		pb, riskEngine, governor, optimizer, rateLimiter, breakers, haltBus,
		tradeStore, instrumentRepo, nil, quietLog,
	)

	pb.OnOrderUpdate(func(u broker.OrderUpdate) { tradeManager.OnOrderUpdate(u, time.Now()) })

	ctx := context.Background()
	minCandles := signal.DefaultPipelineConfig().MinCandles

	log.Info().Str("symbol", cfg.TradingSymbol).Int("candles", len(candles)).Msg("backtest: starting replay")

	for i, c := range candles {
		window := candles[:i+1]

		if i+1 >= minCandles {
			evalResult := pipeline.Evaluate(window)
			if evalResult.Winner != nil {
				if _, err := tradeManager.OnSignal(ctx, *evalResult.Winner, window, c.Timestamp); err != nil {
					log.Debug().Err(err).Msg("backtest: signal not admitted")
				}
			}
		}

		pb.SetPrice(cfg.InstrumentToken, c.Close, c.Timestamp)
		tick := broker.Tick{InstrumentToken: cfg.InstrumentToken, LastPrice: c.Close, ExchangeTimestamp: c.Timestamp}
		tradeManager.OnTick(tick, window, c.Timestamp, nil)
		tradeManager.CheckPartialFillTimeouts(c.Timestamp)

		equity, err := e.markToMarket(pb, cfg, c.Close)
		if err != nil {
			return nil, fmt.Errorf("backtest: mark to market: %w", err)
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Timestamp: c.Timestamp, Equity: equity})
	}

	trades, err := tradeStore.All()
	if err != nil {
		return nil, fmt.Errorf("backtest: load trades: %w", err)
	}
	result.Trades = trades
	result.Metrics = CalculateMetrics(trades, result.EquityCurve, cfg.InitialCapital)
	result.CompletedAt = time.Now()

	log.Info().
		Str("id", result.ID).
		Float64("total_return", result.Metrics.TotalReturn).
		Int("total_trades", result.Metrics.TotalTrades).
		Float64("win_rate", result.Metrics.WinRate).
		Msg("backtest: replay complete")

	return result, nil
}

// markToMarket returns cash plus the replayed instrument's position value
// at the current close — PaperBroker's own balance.Equity is set at
// construction and never updated, so the mark-to-market curve is computed here.
func (e *Engine) markToMarket(pb *broker.PaperBroker, cfg BacktestConfig, close float64) (float64, error) {
	balance, err := pb.GetMargins()
	if err != nil {
		return 0, err
	}
	positions, err := pb.GetPositions()
	if err != nil {
		return 0, err
	}
	equity := balance.Cash
	for _, p := range positions {
		if p.Symbol == cfg.TradingSymbol {
			equity += p.Quantity * close
		}
	}
	return equity, nil
}
