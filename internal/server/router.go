package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayloop/capi-dispatch/internal/handlers"
	"github.com/relayloop/capi-dispatch/internal/middleware"
)

// NewRouter wires the API routes. The debug endpoints are only registered
// when debug mode is on, so the scheduled deployment cannot reach them.
func NewRouter(h *handlers.Handler, debug bool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/dispatch", h.Dispatch)
	mux.HandleFunc("/healthz", h.Health)
	mux.Handle("/metrics", promhttp.Handler())

	if debug {
		mux.HandleFunc("/api/v1/debug/fire", h.DebugFire)
		mux.HandleFunc("/api/v1/debug/rows", h.DebugRows)
	}

	return middleware.RequestID(mux)
}
