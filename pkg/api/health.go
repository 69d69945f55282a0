package api

import (
	"net/http"

	"github.com/harborworks/flotilla/pkg/metrics"
)

// registerHealth mounts the operational endpoints shared by the captain
// and sailor daemons: liveness, readiness and the Prometheus scrape.
func registerHealth(mux *http.ServeMux) {
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.Handle("/metrics", metrics.Handler())
}
