package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/alexherrero/sherwood/backend/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler returns the health status of the API.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "ok"

	// Check Broker
	if h.broker != nil {
		checks["execution"] = "active"
	} else {
		checks["execution"] = "disabled"
	}

	// Check Data Provider
	if h.provider != nil {
		checks["data_provider"] = h.provider.Name()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"mode":      string(h.config.TradingMode),
		"timestamp": time.Now(),
		"checks":    checks,
	})
}

// MetricsHandler returns basic runtime statistics as JSON.
func (h *Handler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	metrics := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]uint64{
			"alloc":       m.Alloc,
			"total_alloc": m.TotalAlloc,
			"sys":         m.Sys,
			"num_gc":      uint64(m.NumGC),
		},
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"timestamp":      time.Now(),
	}

	writeJSON(w, http.StatusOK, metrics)
}

// PrometheusMetricsHandler refreshes the governor/risk-engine gauges and
// serves them in Prometheus text exposition format.
func (h *Handler) PrometheusMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if h.governor != nil {
		state := h.governor.Snapshot()
		telemetry.RealizedPnlInr.Set(state.RealizedPnlInr)
		telemetry.TradesCount.Set(float64(state.TradesCount))
		telemetry.LossStreak.Set(float64(state.LossStreak))
		telemetry.OpenRiskInr.Set(state.OpenRiskInr)
	}
	if h.riskEngine != nil {
		telemetry.SetKillSwitch(h.riskEngine.KillSwitch())
	}
	if h.tradeStore != nil {
		if open, err := h.tradeStore.Open(); err == nil {
			telemetry.OpenTrades.Set(float64(len(open)))
		}
	}

	promhttp.Handler().ServeHTTP(w, r)
}
