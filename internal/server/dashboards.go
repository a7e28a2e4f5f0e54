package server

import (
	"encoding/json"
	"net/http"
	"sort"
)

// DashboardsHandler serves dashboard JSON by path. The bare /dashboards/
// path lists what is available.
func DashboardsHandler(dashboards map[string][]byte) http.Handler {
	index := make([]string, 0, len(dashboards))
	for path := range dashboards {
		index = append(index, path)
	}
	sort.Strings(index)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/dashboards/" {
			_ = json.NewEncoder(w).Encode(map[string][]string{"dashboards": index})
			return
		}
		data, ok := dashboards[r.URL.Path]
		if !ok {
			w.Header().Del("Content-Type")
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})
}
