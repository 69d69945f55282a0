package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborworks/flotilla/pkg/captain"
	"github.com/harborworks/flotilla/pkg/log"
	"github.com/harborworks/flotilla/pkg/types"
)

// Server exposes the captain over HTTP with JSON bodies
type Server struct {
	captain *captain.Captain
	httpSrv *http.Server
	logger  zerolog.Logger
}

// NewServer creates an API server for the given captain
func NewServer(cpt *captain.Captain) *Server {
	return &Server{
		captain: cpt,
		logger:  log.WithComponent("api"),
	}
}

// Handler builds the full route table. Exposed separately so tests can
// drive the server through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/prereg", s.handlePrereg)
	mux.HandleFunc("/sailor_register", s.handleRegister)
	mux.HandleFunc("/sailor_awake", s.handleAwake)
	mux.HandleFunc("/sailor_report", s.handleReport)
	mux.HandleFunc("/user_chore", s.handleSubmit)
	mux.HandleFunc("/user_cancel", s.handleCancel)
	mux.HandleFunc("/user_consult", s.handleConsult)
	mux.HandleFunc("/crew", s.handleCrew)
	mux.HandleFunc("/users", s.handleUsers)
	mux.HandleFunc("/user_upsert", s.handleUpsertUser)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/me/chores", s.handleMyChores)
	mux.HandleFunc("/me/cancel", s.handleMyCancel)

	registerHealth(mux)

	return Interceptor(mux)
}

// Start serves the API on addr and blocks until the listener closes
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("API listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
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

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// the mux routes every unknown path here
	if r.URL.Path != "/" {
		writeError(w, fmt.Errorf("%w: no such endpoint", captain.ErrNotFound))
		return
	}
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.captain.Index())
}

func (s *Server) handlePrereg(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req types.PreregRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.captain.Prereg(req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req types.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.captain.Register(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true})
}

func (s *Server) handleAwake(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req types.AwakeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.captain.Awake(req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req types.ReportRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.captain.Report(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req types.SubmitChoreRequest
	if !decode(w, r, &req) {
		return
	}
	choreID, err := s.captain.SubmitChore(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SubmitChoreResponse{OK: true, ChoreID: choreID})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req types.CancelRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.captain.CancelChore(r.Context(), req.ChoreID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true})
}

func (s *Server) handleConsult(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	owner := r.URL.Query().Get("owner")
	all := r.URL.Query().Get("all") == "true"
	writeJSON(w, http.StatusOK, orEmptyChores(s.captain.Consult(owner, all)))
}

func (s *Server) handleCrew(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	members := s.captain.CrewList()
	if members == nil {
		members = []types.CrewMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	users := s.captain.ListUsers()
	if users == nil {
		users = []types.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req types.UpsertUserRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.captain.UpsertUser(req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req types.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	token, err := s.captain.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.LoginResponse{
		OK:       true,
		Token:    token.Token,
		UID:      token.UID,
		Username: token.Username,
	})
}

func (s *Server) handleMyChores(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	lt, ok := s.authorize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, orEmptyChores(s.captain.ConsultOwner(lt.UID)))
}

func (s *Server) handleMyCancel(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	lt, ok := s.authorize(w, r)
	if !ok {
		return
	}
	var req types.CancelRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.captain.CancelChoreOwned(r.Context(), req.ChoreID, req.Reason, lt.UID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true})
}

// authorize resolves the bearer token on /me endpoints; on failure the
// 401 has already been written.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (*captain.LoginToken, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		writeError(w, fmt.Errorf("%w: missing bearer token", captain.ErrUnauthorized))
		return nil, false
	}

	lt, err := s.captain.Authorize(token)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return lt, true
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeJSON(w, http.StatusMethodNotAllowed, types.ErrorResponse{Detail: "method not allowed"})
		return false
	}
	return true
}

// decode reads the JSON request body; on failure the 400 has already
// been written.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body: %v", captain.ErrInvalid, err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the captain's sentinel error kinds onto HTTP status
// codes and answers with the {"detail": ...} body the clients expect.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, captain.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, captain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, captain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, captain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, captain.ErrNotImplemented):
		status = http.StatusNotImplemented
	}
	writeJSON(w, status, types.ErrorResponse{Detail: err.Error()})
}

// orEmptyChores keeps empty listings as [] instead of null on the wire
func orEmptyChores(chores []types.Chore) []types.Chore {
	if chores == nil {
		return []types.Chore{}
	}
	return chores
}
