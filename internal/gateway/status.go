package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/flemzord/cronr/internal/metrics"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Version     string            `json:"version"`
	Uptime      int64             `json:"uptime_seconds"`
	RunningJobs []uint64          `json:"running_jobs"`
	LastReload  *time.Time        `json:"last_reload,omitempty"`
	Metrics     *metrics.Snapshot `json:"metrics,omitempty"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Version:     g.version,
			Uptime:      int64(time.Since(g.startedAt).Seconds()),
			RunningJobs: []uint64{},
		}

		if g.status != nil {
			if running := g.status.Running(); running != nil {
				resp.RunningJobs = running
			}
			if last := g.status.LastReload(); !last.IsZero() {
				utc := last.UTC()
				resp.LastReload = &utc
			}
		}

		if g.metrics != nil {
			snap := g.metrics.Snapshot()
			resp.Metrics = &snap
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
