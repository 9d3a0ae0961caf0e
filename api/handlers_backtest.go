package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alexherrero/sherwood/backend/backtesting"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RunBacktestRequest defines the payload for starting a backtest.
type RunBacktestRequest struct {
	Symbol          string    `json:"symbol" validate:"required,min=1,max=20"`
	InstrumentToken int64     `json:"instrument_token" validate:"required"`
	Exchange        string    `json:"exchange" validate:"required"`
	IntervalMinutes int       `json:"interval_minutes" validate:"required,gt=0"`
	Start           time.Time `json:"start" validate:"required"`
	End             time.Time `json:"end" validate:"required,gtfield=Start"`
	InitialCapital  float64   `json:"initial_capital" validate:"required,gt=0,lte=10000000"`
}

// RunBacktestHandler starts a new backtest, replaying historical candles
// through the registered strategy set via the live signal/execution stack.
func (h *Handler) RunBacktestHandler(w http.ResponseWriter, r *http.Request) {
	var req RunBacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if valErr := validateStruct(req); valErr != nil {
		writeValidationError(w, valErr)
		return
	}

	interval := fmt.Sprintf("%dm", req.IntervalMinutes)
	bars, err := h.provider.GetHistoricalData(req.Symbol, req.Start, req.End, interval)
	if err != nil {
		log.Error().Err(err).Str("symbol", req.Symbol).Msg("Failed to fetch historical data")
		writeError(w, http.StatusInternalServerError, "Failed to fetch historical data")
		return
	}
	if len(bars) == 0 {
		writeError(w, http.StatusBadRequest, "No historical data available for the requested period")
		return
	}

	candles := make([]models.Candle, len(bars))
	for i, b := range bars {
		candles[i] = models.Candle{
			InstrumentToken: req.InstrumentToken,
			IntervalMinutes: req.IntervalMinutes,
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
		Token:          req.InstrumentToken,
		TradingSymbol:  req.Symbol,
		Exchange:       req.Exchange,
		Segment:        req.Exchange,
		InstrumentType: models.InstrumentEquity,
		TickSize:       0.05,
		LotSize:        1,
	}

	btConfig := backtesting.BacktestConfig{
		InstrumentToken: req.InstrumentToken,
		TradingSymbol:   req.Symbol,
		Exchange:        req.Exchange,
		IntervalMinutes: req.IntervalMinutes,
		StartDate:       req.Start,
		EndDate:         req.End,
		InitialCapital:  req.InitialCapital,
	}

	engine := backtesting.NewEngine(h.registry)
	result, err := engine.Run(candles, instrument, btConfig)
	if err != nil {
		log.Error().Err(err).Msg("Backtest execution failed")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Backtest failed: %v", err))
		return
	}

	h.mu.Lock()
	h.results[result.ID] = result
	h.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":      result.ID,
		"status":  "completed",
		"message": "Backtest completed successfully",
		"metrics": result.Metrics,
	})
}

// GetBacktestResultHandler returns results for a completed backtest.
func (h *Handler) GetBacktestResultHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.RLock()
	result, ok := h.results[id]
	h.mu.RUnlock()

	if !ok {
		http.Error(w, "Backtest not found", http.StatusNotFound)
		return
	}

	// Generate report for summary
	report := backtesting.NewReport(result)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         result.ID,
		"status":     "completed",
		"config":     result.Config,
		"metrics":    result.Metrics,
		"trades":     result.Trades,
		"summary":    report.Summary(),
		"chart_data": result.EquityCurve,
	})
}
