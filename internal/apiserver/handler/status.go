package handler

import (
	"net/http"
	"time"

	intmetrics "github.com/edgerun/skippy/internal/metrics"
)

// StatusHandler answers "how is the scheduler behaving right now" from the
// in-memory decision window, without touching the durable audit log.
type StatusHandler struct {
	metrics *intmetrics.Store
}

func NewStatusHandler(metricsStore *intmetrics.Store) *StatusHandler {
	return &StatusHandler{metrics: metricsStore}
}

func (h *StatusHandler) GetRecentDecisions(w http.ResponseWriter, r *http.Request) {
	window := h.metrics.GetDecisionWindow(5 * time.Minute)
	if window == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"dataPoints": 0})
		return
	}
	writeJSON(w, http.StatusOK, window)
}

func (h *StatusHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
