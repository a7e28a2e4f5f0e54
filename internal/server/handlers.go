package server

import (
	"encoding/json"
	"net/http"

	"github.com/joshp123/gohome-fireboard/internal/core"
)

type pluginHealth struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthHandler reports per-plugin health. Any plugin in ERROR makes the
// response 503; DEGRADED plugins still answer 200.
func HealthHandler(plugins []core.Plugin) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		code := http.StatusOK
		report := make([]pluginHealth, 0, len(plugins))
		for _, plugin := range plugins {
			health := plugin.Health()
			if health == core.HealthError {
				code = http.StatusServiceUnavailable
			}
			report = append(report, pluginHealth{
				ID:      plugin.ID(),
				Status:  string(health),
				Message: plugin.HealthMessage(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{"plugins": report})
	}
}
