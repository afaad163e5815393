package handlers

import (
	"net/http"
	"time"

	"github.com/dwsmith1983/forecastd/internal/gateway"
)

// Health returns the server health status. It always answers 200; a degraded
// or unreachable store shows up as status "degraded".
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	mode := gateway.ModeDegraded
	store := "none"
	if s := h.deps.Store; s != nil {
		mode = s.Mode()
		store = s.Backend()
		if mode != gateway.ModeConnected || !s.Healthy() {
			status = "degraded"
		}
	} else {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"status": status,
		"store":  store,
		"mode":   mode,
		"time":   h.now().UTC().Format(time.RFC3339),
	})
}
