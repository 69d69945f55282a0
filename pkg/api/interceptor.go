package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/harborworks/flotilla/pkg/log"
	"github.com/harborworks/flotilla/pkg/metrics"
)

// Interceptor wraps a handler with request logging and the per-path
// request counter and latency histogram.
func Interceptor(next http.Handler) http.Handler {
	logger := log.WithComponent("api")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		path := metricPath(r.URL.Path)
		metrics.APIRequestsTotal.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(path).Observe(elapsed.Seconds())

		event := logger.Debug()
		if rec.status >= 500 {
			event = logger.Error()
		} else if rec.status >= 400 {
			event = logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Str("remote", r.RemoteAddr).
			Msg("Request handled")
	})
}

// metricPath collapses unknown paths so the label set stays bounded
func metricPath(path string) string {
	switch path {
	case "/", "/prereg", "/sailor_register", "/sailor_awake", "/sailor_report",
		"/user_chore", "/user_cancel", "/user_consult", "/crew", "/users",
		"/user_upsert", "/login", "/me/chores", "/me/cancel",
		"/health", "/ready", "/metrics",
		"/captain_request", "/captain_cancel", "/captain_cancels":
		return path
	}
	return "other"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
