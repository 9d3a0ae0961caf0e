// Package telemetry exposes the engine's risk/governor state as Prometheus
// gauges, served on /metrics in Prometheus text exposition format.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	// RealizedPnlInr reports the current trading day's realized P&L.
	RealizedPnlInr = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sherwood_governor_realized_pnl_inr",
		Help: "Realized P&L in INR for the current trading day.",
	})

	// TradesCount reports how many trades the governor has counted today.
	TradesCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sherwood_governor_trades_count",
		Help: "Number of trades closed so far in the current trading day.",
	})

	// LossStreak reports the governor's current consecutive-loss counter.
	LossStreak = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sherwood_governor_loss_streak",
		Help: "Current consecutive-loss streak tracked by the governor.",
	})

	// OpenRiskInr reports the sum of open-position risk the governor is
	// currently carrying.
	OpenRiskInr = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sherwood_governor_open_risk_inr",
		Help: "Aggregate open-position risk in INR across all live trades.",
	})

	// KillSwitch reports whether the risk engine is currently blocking new
	// trade admission (1 = halted, 0 = running).
	KillSwitch = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sherwood_risk_engine_kill_switch",
		Help: "1 if the risk engine kill switch is tripped, 0 otherwise.",
	})

	// OpenTrades reports the count of non-terminal managed trades.
	OpenTrades = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sherwood_trade_manager_open_trades",
		Help: "Number of managed trades currently in a non-terminal state.",
	})
)

func init() {
	prometheus.MustRegister(RealizedPnlInr, TradesCount, LossStreak, OpenRiskInr, KillSwitch, OpenTrades)
}

// boolToFloat converts a bool gauge value to Prometheus's 0/1 convention.
func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SetKillSwitch records the risk engine's current kill-switch state.
func SetKillSwitch(halted bool) {
	KillSwitch.Set(boolToFloat(halted))
}
