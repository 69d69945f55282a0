package sailor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborworks/flotilla/pkg/api"
	"github.com/harborworks/flotilla/pkg/log"
	"github.com/harborworks/flotilla/pkg/metrics"
	"github.com/harborworks/flotilla/pkg/runtime"
	"github.com/harborworks/flotilla/pkg/types"
)

// Launcher is the execution engine seen from the agent's HTTP surface.
// runtime.Engine implements it; tests substitute fakes.
type Launcher interface {
	Launch(req types.LaunchRequest) error
	Cancel(choreID string) error
}

// Server is the agent's HTTP surface: the two captain-facing endpoints
// plus the operational ones.
type Server struct {
	launcher Launcher
	httpSrv  *http.Server
	logger   zerolog.Logger
}

// NewServer creates the agent API around the given engine
func NewServer(launcher Launcher) *Server {
	return &Server{
		launcher: launcher,
		logger:   log.WithComponent("sailor-api"),
	}
}

// Handler builds the route table; exposed for httptest
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/captain_request", s.handleLaunch)
	// historical path variants, all accepted
	mux.HandleFunc("/captain_cancel", s.handleCancel)
	mux.HandleFunc("/captain_cancels", s.handleCancel)
	mux.HandleFunc("/captain_cancels/", s.handleCancel)

	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.Handle("/metrics", metrics.Handler())

	return api.Interceptor(mux)
}

// Start serves the agent API on addr and blocks until the listener closes
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Agent API listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("agent server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and closes the listener
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req types.LaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed JSON body: "+err.Error())
		return
	}

	if err := s.launcher.Launch(req); err != nil {
		writeLaunchError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req types.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed JSON body: "+err.Error())
		return
	}
	if req.ChoreID == "" {
		writeDetail(w, http.StatusBadRequest, "chore_id is required")
		return
	}

	if err := s.launcher.Cancel(req.ChoreID); err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w)
}

// writeLaunchError maps engine error kinds onto status codes. Launch
// failures that never started a process answer 500 so the captain rolls
// the reservation back.
func writeLaunchError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, runtime.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, runtime.ErrNotPermitted):
		status = http.StatusForbidden
	}
	writeDetail(w, status, err.Error())
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(types.OKResponse{OK: true})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Detail: detail})
}
