package api

import (
	"fmt"
	"net/http"

	"github.com/alexherrero/sherwood/backend/analysis"
)

// GetPortfolioPerformanceHandler returns aggregate performance metrics.
//
// @Summary      Get Performance Metrics
// @Description  Calculates and returns performance metrics based on trade history.
// @Tags         portfolio
// @Accept       json
// @Produce      json
// @Success      200  {object}  analysis.PerformanceMetrics
// @Failure      500  {object}  APIError
// @Router       /portfolio/performance [get]
func (h *Handler) GetPortfolioPerformanceHandler(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "Execution layer not available")
		return
	}

	orders, err := h.broker.GetOrders()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve order history: %v", err))
		return
	}

	const initialCapital = 100000.0 // paper-broker starting cash

	metrics := analysis.CalculateMetrics(orders, initialCapital)

	writeJSON(w, http.StatusOK, metrics)
}
