// Command backtest replays historical candles for one instrument through
// the registered strategy set and prints a performance report.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/alexherrero/sherwood/backend/backtesting"
	"github.com/alexherrero/sherwood/backend/config"
	"github.com/alexherrero/sherwood/backend/data/providers"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/strategies"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	symbol := flag.String("symbol", "RELIANCE", "trading symbol to replay")
	token := flag.Int64("token", 738561, "instrument token")
	exchange := flag.String("exchange", "NSE", "instrument exchange")
	intervalMinutes := flag.Int("interval", 5, "candle interval in minutes")
	daysBack := flag.Int("days", 30, "number of days of history to replay")
	initialCapital := flag.Float64("capital", 100000, "starting paper-broker cash balance")
	provider := flag.String("provider", "yahoo", "data provider (yahoo, tiingo, binance)")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.DataProvider = *provider

	dataProvider, err := providers.NewProviderFromString(*provider, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init data provider")
	}

	end := time.Now()
	start := end.AddDate(0, 0, -*daysBack)
	interval := fmt.Sprintf("%dm", *intervalMinutes)

	bars, err := dataProvider.GetHistoricalData(*symbol, start, end, interval)
	if err != nil {
		log.Fatal().Err(err).Str("symbol", *symbol).Msg("failed to fetch historical data")
	}
	if len(bars) == 0 {
		log.Fatal().Str("symbol", *symbol).Msg("no historical data returned for the requested period")
	}

	candles := make([]models.Candle, len(bars))
	for i, b := range bars {
		candles[i] = models.Candle{
			InstrumentToken: *token,
			IntervalMinutes: *intervalMinutes,
			Timestamp:       b.Timestamp,
			Open:            b.Open,
			High:            b.High,
			Low:             b.Low,
			Close:           b.Close,
			Volume:          b.Volume,
			Source:          models.CandleSourceHistorical,
		}
	}

	instrument := models.Instrument{
		Token:          *token,
		TradingSymbol:  *symbol,
		Exchange:       *exchange,
		Segment:        *exchange,
		InstrumentType: models.InstrumentEquity,
		TickSize:       0.05,
		LotSize:        1,
	}

	registry, err := strategies.NewDefaultRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build strategy registry")
	}

	btConfig := backtesting.BacktestConfig{
		InstrumentToken: *token,
		TradingSymbol:   *symbol,
		Exchange:        *exchange,
		IntervalMinutes: *intervalMinutes,
		StartDate:       start,
		EndDate:         end,
		InitialCapital:  *initialCapital,
	}

	engine := backtesting.NewEngine(registry)
	result, err := engine.Run(candles, instrument, btConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	report := backtesting.NewReport(result)
	fmt.Println(report.Summary())
	fmt.Println(report.TradeList())
}
