package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// handleHealth returns an http.HandlerFunc for GET /health. The daemon is
// degraded when the store has not been reloaded for three intervals.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok", Version: g.version}

		if g.status != nil && g.config.StaleAfter > 0 {
			if last := g.status.LastReload(); !last.IsZero() && time.Since(last) > g.config.StaleAfter {
				resp.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
