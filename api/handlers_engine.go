package api

import (
	"encoding/json"
	"net/http"
)

// EngineControlRequest defines the payload for engine control.
type EngineControlRequest struct {
	Confirm bool `json:"confirm"`
}

// StartEngineHandler clears the kill switch, allowing the risk engine to
// admit new trades again.
func (h *Handler) StartEngineHandler(w http.ResponseWriter, r *http.Request) {
	if h.riskEngine == nil {
		writeError(w, http.StatusServiceUnavailable, "Risk engine not available")
		return
	}

	var req EngineControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Confirm {
		writeError(w, http.StatusBadRequest, "Confirmation required: {\"confirm\": true}")
		return
	}

	h.riskEngine.SetKillSwitch(false)
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// StopEngineHandler trips the kill switch, blocking the risk engine from
// admitting any further trades until cleared.
func (h *Handler) StopEngineHandler(w http.ResponseWriter, r *http.Request) {
	if h.riskEngine == nil {
		writeError(w, http.StatusServiceUnavailable, "Risk engine not available")
		return
	}

	var req EngineControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Confirm {
		writeError(w, http.StatusBadRequest, "Confirmation required: {\"confirm\": true}")
		return
	}

	h.riskEngine.SetKillSwitch(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// GetEngineStatusHandler reports whether the risk engine is currently
// admitting trades.
func (h *Handler) GetEngineStatusHandler(w http.ResponseWriter, r *http.Request) {
	if h.riskEngine == nil {
		writeError(w, http.StatusServiceUnavailable, "Risk engine not available")
		return
	}
	halted := h.riskEngine.KillSwitch()
	status := "running"
	if halted {
		status = "stopped"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
