package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborworks/flotilla/pkg/storage"
	"github.com/harborworks/flotilla/pkg/types"
)

func newTestCaptain(t *testing.T, handler http.HandlerFunc) (*CaptainClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	addr := strings.TrimPrefix(server.URL, "http://")
	return NewCaptainClient(addr), server
}

func TestSubmitChore(t *testing.T) {
	var got types.SubmitChoreRequest
	captain, _ := newTestCaptain(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/user_chore", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(types.SubmitChoreResponse{OK: true, ChoreID: "1712000000000"})
	})

	choreID, err := captain.SubmitChore(context.Background(), types.SubmitChoreRequest{
		Script:     "/home/alice/run.sh",
		Service:    "gpu",
		Ressources: &types.Resources{CPUs: 2, GPUs: types.GPUCount(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, "1712000000000", choreID)
	assert.Equal(t, "/home/alice/run.sh", got.Script)
	assert.Equal(t, "gpu", got.Service)
}

func TestSubmitChoreForbidden(t *testing.T) {
	captain, _ := newTestCaptain(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(types.ErrorResponse{Detail: "user chores limit reached (2/2)"})
	})

	_, err := captain.SubmitChore(context.Background(), types.SubmitChoreRequest{Script: "/x.sh"})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T", err)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "user chores limit reached (2/2)", apiErr.Detail)
}

func TestCancelChore(t *testing.T) {
	var got types.CancelRequest
	captain, _ := newTestCaptain(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user_cancel", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(types.OKResponse{OK: true})
	})

	err := captain.CancelChore(context.Background(), "1712000000000", "wrong dataset")
	require.NoError(t, err)
	assert.Equal(t, "1712000000000", got.ChoreID)
	assert.Equal(t, "wrong dataset", got.Reason)
}

func TestConsultQueryParams(t *testing.T) {
	var gotQuery url.Values
	captain, _ := newTestCaptain(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user_consult", r.URL.Path)
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode([]types.Chore{{ChoreID: "1", Status: types.ChoreStatusPending}})
	})

	chores, err := captain.Consult(context.Background(), "1000", false)
	require.NoError(t, err)
	require.Len(t, chores, 1)
	assert.Equal(t, "1000", gotQuery.Get("owner"))
	assert.Empty(t, gotQuery.Get("all"))

	_, err = captain.Consult(context.Background(), "", true)
	require.NoError(t, err)
	assert.Equal(t, "true", gotQuery.Get("all"))
}

func TestCrewList(t *testing.T) {
	captain, _ := newTestCaptain(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crew", r.URL.Path)
		json.NewEncoder(w).Encode([]types.CrewMember{
			{Sailor: types.Sailor{Name: "alpha", CPUs: 8}, DerivedStatus: types.SailorStatusIdle},
		})
	})

	crew, err := captain.Crew(context.Background())
	require.NoError(t, err)
	require.Len(t, crew, 1)
	assert.Equal(t, "alpha", crew[0].Name)
	assert.Equal(t, types.SailorStatusIdle, crew[0].DerivedStatus)
}

func TestRegisterAndAwake(t *testing.T) {
	paths := []string{}
	captain, _ := newTestCaptain(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		json.NewEncoder(w).Encode(types.OKResponse{OK: true})
	})

	err := captain.Register(context.Background(), types.RegisterRequest{
		Name: "alpha", IP: "10.0.0.5", Port: 8001, CPUs: 8,
	})
	require.NoError(t, err)

	err = captain.Awake(context.Background(), "alpha")
	require.NoError(t, err)

	assert.Equal(t, []string{"/sailor_register", "/sailor_awake"}, paths)
}

func TestReport(t *testing.T) {
	var got types.ReportRequest
	captain, _ := newTestCaptain(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sailor_report", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(types.OKResponse{OK: true})
	})

	code := 0
	err := captain.Report(context.Background(), types.ReportRequest{
		Name: "alpha", ChoreID: "1712000000000", Status: types.ReportDone, ExitCode: &code,
	})
	require.NoError(t, err)
	assert.Equal(t, types.ReportDone, got.Status)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 0, *got.ExitCode)
}

func TestBearerTokenSent(t *testing.T) {
	var gotAuth string
	captain, _ := newTestCaptain(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]types.Chore{})
	})

	_, err := captain.WithToken("deadbeef").MyChores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer deadbeef", gotAuth)
}

func TestLogin(t *testing.T) {
	captain, _ := newTestCaptain(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login", r.URL.Path)
		var req types.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Username)
		json.NewEncoder(w).Encode(types.LoginResponse{OK: true, Token: "cafe01"})
	})

	token, err := captain.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "cafe01", token)
}

func TestLoginNotImplemented(t *testing.T) {
	captain, _ := newTestCaptain(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
		json.NewEncoder(w).Encode(types.ErrorResponse{Detail: "login is not configured"})
	})

	_, err := captain.Login(context.Background(), "alice", "secret")
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotImplemented, apiErr.StatusCode)
}

func TestErrorWithoutDetailBody(t *testing.T) {
	captain, _ := newTestCaptain(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := captain.Prereg(context.Background(), types.PreregRequest{Name: "alpha"})
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Detail)
}

func TestSailorClientLaunch(t *testing.T) {
	var got types.LaunchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/captain_request", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(types.OKResponse{OK: true})
	}))
	defer server.Close()

	sailor := sailorFromTestServer(t, server)
	err := NewSailorClient().Launch(context.Background(), sailor, types.LaunchRequest{
		ChoreID:    "1712000000000",
		Script:     "/x.sh",
		Ressources: types.Resources{CPUs: 2},
		Owner:      1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "1712000000000", got.ChoreID)
	assert.Equal(t, types.FlexInt(1000), got.Owner)
}

func TestSailorClientLaunchRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(types.ErrorResponse{Detail: "uid switch not permitted"})
	}))
	defer server.Close()

	sailor := sailorFromTestServer(t, server)
	err := NewSailorClient().Launch(context.Background(), sailor, types.LaunchRequest{ChoreID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uid switch not permitted")
}

func TestSailorClientCancel(t *testing.T) {
	var got types.CancelRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/captain_cancel", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(types.OKResponse{OK: true})
	}))
	defer server.Close()

	sailor := sailorFromTestServer(t, server)
	err := NewSailorClient().Cancel(context.Background(), sailor, "1712000000000")
	require.NoError(t, err)
	assert.Equal(t, "1712000000000", got.ChoreID)
}

func TestSailorClientUnreachable(t *testing.T) {
	sailor := types.Sailor{Name: "ghost", IP: "127.0.0.1", Port: 1}
	err := NewSailorClient().Launch(context.Background(), sailor, types.LaunchRequest{ChoreID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach sailor")
}

func TestDiscoverViaFlagFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.IndexResponse{OK: true, Message: "captain at your service"})
	}))
	defer server.Close()

	port := portFromTestServer(t, server)
	flagPath := filepath.Join(t.TempDir(), "serve.json")
	require.NoError(t, storage.SaveJSON(flagPath, types.ServeFlag{Port: port, PID: os.Getpid()}))
	t.Setenv("CAPTAIN_FLAG_FILE", flagPath)

	addr := Discover(context.Background())
	assert.Equal(t, "127.0.0.1:"+strconv.Itoa(port), addr)
}

func TestDiscoverFallsBackToDefault(t *testing.T) {
	t.Setenv("CAPTAIN_FLAG_FILE", filepath.Join(t.TempDir(), "missing.json"))

	addr := Discover(context.Background())
	assert.Equal(t, DefaultCaptainAddr, addr)
}

func sailorFromTestServer(t *testing.T, server *httptest.Server) types.Sailor {
	t.Helper()
	return types.Sailor{Name: "alpha", IP: "127.0.0.1", Port: portFromTestServer(t, server)}
}

func portFromTestServer(t *testing.T, server *httptest.Server) int {
	t.Helper()
	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)
	return port
}
