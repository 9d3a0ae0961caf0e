// Command engine is the entry point for the Sherwood intraday trading
// engine. It wires the tick ingestion pipeline, the signal pipeline, the
// risk admission chain, and the trade manager into one running process,
// fronted by the admin/execution REST API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/alexherrero/sherwood/backend/api"
	"github.com/alexherrero/sherwood/backend/broker"
	"github.com/alexherrero/sherwood/backend/config"
	"github.com/alexherrero/sherwood/backend/data"
	"github.com/alexherrero/sherwood/backend/data/providers"
	"github.com/alexherrero/sherwood/backend/execution"
	"github.com/alexherrero/sherwood/backend/exit"
	"github.com/alexherrero/sherwood/backend/halt"
	"github.com/alexherrero/sherwood/backend/ingest"
	"github.com/alexherrero/sherwood/backend/market"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/notifications"
	"github.com/alexherrero/sherwood/backend/realtime"
	"github.com/alexherrero/sherwood/backend/risk"
	"github.com/alexherrero/sherwood/backend/signal"
	"github.com/alexherrero/sherwood/backend/strategies"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// candleIntervals are the bar sizes the ingestor aggregates; strategies
// evaluate against the first (finest) interval's candle history.
var candleIntervals = []int{1, 5, 15}

// universe is the static instrument seed list. Tokens follow the shape of
// real NSE/Kite instrument tokens; a live deployment replaces this with an
// instrument dump fetched from the broker at startup.
var universe = []models.Instrument{
	{Token: 738561, TradingSymbol: "RELIANCE", Exchange: "NSE", Segment: "NSE", InstrumentType: models.InstrumentEquity, TickSize: 0.05, LotSize: 1},
	{Token: 2953217, TradingSymbol: "TCS", Exchange: "NSE", Segment: "NSE", InstrumentType: models.InstrumentEquity, TickSize: 0.05, LotSize: 1},
	{Token: 341249, TradingSymbol: "HDFCBANK", Exchange: "NSE", Segment: "NSE", InstrumentType: models.InstrumentEquity, TickSize: 0.05, LotSize: 1},
	{Token: 408065, TradingSymbol: "INFY", Exchange: "NSE", Segment: "NSE", InstrumentType: models.InstrumentEquity, TickSize: 0.05, LotSize: 1},
	{Token: 895745, TradingSymbol: "SBIN", Exchange: "NSE", Segment: "NSE", InstrumentType: models.InstrumentEquity, TickSize: 0.05, LotSize: 1},
}

// yahooSymbol maps a tradingsymbol to the provider symbol the poller
// bridges price updates from, until a live Kite-style broker feed replaces
// the poller entirely.
func yahooSymbol(tradingSymbol string) string {
	return tradingSymbol + ".NS"
}

// defaultExitConfig returns sane intraday defaults for exit.Config, which
// has no built-in default since a zero Config disarms every exit rule.
func defaultExitConfig() exit.Config {
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

// defaultBreakerConfig returns conservative circuit-breaker thresholds;
// risk.BreakerConfig, unlike the engine/governor/optimizer configs, has no
// built-in default.
func defaultBreakerConfig() risk.BreakerConfig {
	return risk.BreakerConfig{
		MaxConsecutiveFailures: 3,
		MaxFailuresPerHour:     10,
		CooldownMinutes:        15,
	}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("starting sherwood trading engine")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsLive() {
		log.Warn().Msg("LIVE TRADING MODE - real money at risk")
	} else {
		log.Info().Msg("paper trading mode (dry run)")
	}

	db, err := data.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	candleStore := data.NewCandleStore(db)
	candleCache := data.NewCandleCache(5000)
	instrumentRepo := data.NewInstrumentRepo(db)
	tradeStore := data.NewTradeStore(db)
	notificationStore := data.NewNotificationStore(db)

	tokens := make([]int64, 0, len(universe))
	for _, instr := range universe {
		instr.CachedAt = time.Now()
		if err := instrumentRepo.Upsert(instr); err != nil {
			log.Fatal().Err(err).Str("symbol", instr.TradingSymbol).Msg("failed to seed instrument")
		}
		tokens = append(tokens, instr.Token)
	}
	log.Info().Int("count", len(universe)).Msg("seeded instrument universe")

	cal := market.NewCalendarFromHolidays(nil, market.DefaultSessionHours())

	haltBus := halt.NewBus(256, log.Logger)

	wsManager := realtime.NewWebSocketManager()
	go wsManager.Run()

	notificationManager := notifications.NewManager(notificationStore, wsManager)

	pb := broker.NewPaperBroker(100000.0)
	if err := pb.Connect(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect paper broker")
	}
	var brk broker.Broker = pb
	if err := brk.Subscribe(tokens); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe instrument universe")
	}

	riskEngine := risk.NewEngine(risk.DefaultEngineConfig(), cal)

	governorStore := data.NewGovernorStore(db)
	governor, err := risk.NewGovernor(risk.DefaultGovernorConfig(), governorStore, time.Now(), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize portfolio governor")
	}

	optimizerStore := data.NewOptimizerStore(db)
	optimizer, err := risk.NewOptimizer(risk.DefaultOptimizerConfig(), optimizerStore, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize adaptive optimizer")
	}

	rateLimiter := risk.NewOrderRateLimiter(risk.DefaultRateLimiterConfig())
	breakers := risk.NewBreakerManager(defaultBreakerConfig(), log.Logger)

	registry, err := strategies.NewDefaultRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build strategy registry")
	}
	log.Info().Strs("strategies", registry.List()).Msg("registered strategies")

	selector := signal.NewSelector(signal.DefaultSelectorConfig())
	pipeline := signal.NewPipeline(signal.DefaultPipelineConfig(), registry, selector, log.Logger)

	tradeManager := execution.NewTradeManager(
		execution.DefaultTradeManagerConfig(),
		defaultExitConfig(),
		brk,
		riskEngine,
		governor,
		optimizer,
		rateLimiter,
		breakers,
		haltBus,
		tradeStore,
		instrumentRepo,
		wsManager,
		log.Logger,
	)

	if err := tradeManager.LoadOpenTrades(); err != nil {
		log.Warn().Err(err).Msg("failed to load open trades from database")
	}

	ingestor := ingest.NewIngestor(ingest.Config{
		Intervals:     candleIntervals,
		QueueCapacity: 4096,
		IdleThreshold: 2 * time.Minute,
	}, candleStore, candleCache, log.Logger)

	ingestor.OnClose(func(c models.Candle) {
		if c.IntervalMinutes != candleIntervals[0] {
			return
		}
		candles := candleCache.Last(c.InstrumentToken, c.IntervalMinutes, 200)
		result := pipeline.Evaluate(candles)
		if result.Winner == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := tradeManager.OnSignal(ctx, *result.Winner, candles, c.Timestamp); err != nil {
			log.Warn().Err(err).Str("strategy", result.Winner.StrategyName).Msg("signal rejected by admission chain")
		}
	})

	pb.OnTicks(ingestor.HandleTicks)
	pb.OnTicks(func(batch []broker.Tick) {
		now := time.Now()
		for _, t := range batch {
			candles := candleCache.Last(t.InstrumentToken, candleIntervals[0], 200)
			tradeManager.OnTick(t, candles, now, nil)
		}
	})
	pb.OnOrderUpdate(func(u broker.OrderUpdate) {
		tradeManager.OnOrderUpdate(u, time.Now())
	})

	ctx, cancelIngest := context.WithCancel(context.Background())
	go ingestor.Run(ctx)
	go ingestor.Watchdog(ctx, tokens, 30*time.Second, cal, brk.Subscribe)

	provider, err := providers.NewProviderFromString(cfg.DataProvider, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.DataProvider).Msg("failed to create data provider")
	}
	log.Info().Str("provider", cfg.DataProvider).Msg("bridging data provider into tick stream")

	pollCtx, cancelPoll := context.WithCancel(context.Background())
	go runPricePoller(pollCtx, provider, pb, universe, 5*time.Second)

	housekeepingCtx, cancelHousekeeping := context.WithCancel(context.Background())
	go runHousekeeping(housekeepingCtx, tradeManager, 10*time.Second)

	router := api.NewRouter(cfg, registry, provider, brk, tradeStore, riskEngine, governor, wsManager, notificationManager)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("api server listening on %s:%d", cfg.ServerHost, cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	cancelPoll()
	cancelHousekeeping()
	cancelIngest()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited gracefully")
}

// runPricePoller bridges a historical/quote DataProvider into the live
// tick stream by polling GetLatestPrice on an interval and feeding the
// result through the paper broker, the same path a live market-data push
// would take.
func runPricePoller(ctx context.Context, provider data.DataProvider, pb *broker.PaperBroker, universe []models.Instrument, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, instr := range universe {
				price, err := provider.GetLatestPrice(yahooSymbol(instr.TradingSymbol))
				if err != nil {
					log.Debug().Err(err).Str("symbol", instr.TradingSymbol).Msg("price poll failed")
					continue
				}
				pb.SetPrice(instr.Token, price, now)
			}
		}
	}
}

// runHousekeeping drives the periodic, non-tick-triggered trade manager
// work: partial-fill timeout checks and the broker/store reconcile loop.
func runHousekeeping(ctx context.Context, tm *execution.TradeManager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			tm.CheckPartialFillTimeouts(now)
			if err := tm.Reconcile(ctx, now); err != nil {
				log.Warn().Err(err).Msg("reconcile failed")
			}
		}
	}
}
