// Package api assembles the HTTP surface: the static frontend, the
// websocket endpoint, health and metrics.
package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lattiodev/Qubic-Web-IDE-Multi-User-CLI-Environment/internal/gateway"
)

type Config struct {
	// PublicDir holds the built frontend assets served at /.
	PublicDir string
}

// NewRouter wires every route. registry may be nil, in which case /metrics
// is not registered.
func NewRouter(cfg Config, gw *gateway.Gateway, registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", gw.ServeWS)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/smart-contract-tester", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(cfg.PublicDir, "smart-contract-tester.html"))
	})
	mux.Handle("/", http.FileServer(http.Dir(cfg.PublicDir)))

	if registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return corsMiddleware(mux)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
