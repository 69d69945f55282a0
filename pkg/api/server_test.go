package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborworks/flotilla/pkg/captain"
	"github.com/harborworks/flotilla/pkg/types"
)

type okDialer struct{}

func (okDialer) Launch(context.Context, types.Sailor, types.LaunchRequest) error { return nil }
func (okDialer) Cancel(context.Context, types.Sailor, string) error             { return nil }

type staticAuth struct {
	uid int
}

func (a staticAuth) Authenticate(_ context.Context, username, password string) (int, error) {
	if password != "hunter2" {
		return 0, fmt.Errorf("bad password")
	}
	return a.uid, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *captain.Captain) {
	t.Helper()
	cfg := captain.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cpt, err := captain.NewCaptain(cfg, okDialer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cpt.Shutdown() })

	ts := httptest.NewServer(NewServer(cpt).Handler())
	t.Cleanup(ts.Close)
	return ts, cpt
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestIndex(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out types.IndexResponse
	decodeBody(t, resp, &out)
	assert.True(t, out.OK)
	assert.NotEmpty(t, out.Message)
}

func TestUnknownPathIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/no_such_endpoint")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/user_chore")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMalformedBodyIs400(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/user_chore", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out types.ErrorResponse
	decodeBody(t, resp, &out)
	assert.NotEmpty(t, out.Detail)
}

func TestSubmitConsultFlow(t *testing.T) {
	ts, _ := newTestServer(t)

	// fleet: one preregistered, registered sailor
	resp := postJSON(t, ts, "/prereg", types.PreregRequest{Name: "alpha", IP: "127.0.0.1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts, "/sailor_register", types.RegisterRequest{Name: "alpha", IP: "127.0.0.1", CPUs: 4})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	owner := types.FlexInt(1000)
	resp = postJSON(t, ts, "/user_chore", types.SubmitChoreRequest{Script: "/run.sh", Owner: &owner})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var submitted types.SubmitChoreResponse
	decodeBody(t, resp, &submitted)
	assert.True(t, submitted.OK)
	assert.NotEmpty(t, submitted.ChoreID)

	resp, err := http.Get(ts.URL + "/user_consult?all=true")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var chores []types.Chore
	decodeBody(t, resp, &chores)
	require.Len(t, chores, 1)
	assert.Equal(t, submitted.ChoreID, chores[0].ChoreID)
	assert.Equal(t, types.ChoreStatusAssigned, chores[0].Status)
	assert.Equal(t, "alpha", chores[0].Sailor)
}

func TestSubmitWithoutOwnerIs400(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/user_chore", types.SubmitChoreRequest{Script: "/run.sh"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterUnknownSailorIs403(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/sailor_register", types.RegisterRequest{Name: "ghost", IP: "127.0.0.1", CPUs: 4})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAwakeUnknownSailorIs403(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/sailor_awake", types.AwakeRequest{Name: "ghost"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCancelUnknownChoreIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/user_cancel", types.CancelRequest{ChoreID: "12345"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConsultEmptyIsJSONArray(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/user_consult?all=true")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var chores []types.Chore
	decodeBody(t, resp, &chores)
	assert.NotNil(t, chores)
	assert.Empty(t, chores)
}

func TestCrewAndUsers(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/prereg", types.PreregRequest{Name: "alpha", IP: "10.0.0.5"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	name := "ada"
	limit := "01-00:00:00"
	resp = postJSON(t, ts, "/user_upsert", types.UpsertUserRequest{UID: "1000", Name: &name, TimeLimit: &limit})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/crew")
	require.NoError(t, err)
	var crew []types.CrewMember
	decodeBody(t, resp, &crew)
	require.Len(t, crew, 1)
	assert.Equal(t, "alpha", crew[0].Name)
	assert.Equal(t, types.SailorStatusDown, crew[0].DerivedStatus)
	assert.Nil(t, crew[0].SeenAgo)

	resp, err = http.Get(ts.URL + "/users")
	require.NoError(t, err)
	var users []types.User
	decodeBody(t, resp, &users)
	require.Len(t, users, 1)
	assert.Equal(t, "ada", users[0].Name)
	assert.Equal(t, "01-00:00:00", users[0].TimeLimit)
}

func TestLoginNotConfiguredIs501(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/login", types.LoginRequest{Username: "ada", Password: "hunter2"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestLoginAndMeEndpoints(t *testing.T) {
	ts, cpt := newTestServer(t)
	cpt.SetAuthenticator(staticAuth{uid: 1000})

	resp := postJSON(t, ts, "/login", types.LoginRequest{Username: "ada", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts, "/login", types.LoginRequest{Username: "ada", Password: "hunter2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login types.LoginResponse
	decodeBody(t, resp, &login)
	require.True(t, login.OK)
	require.NotEmpty(t, login.Token)
	assert.Equal(t, 1000, login.UID)

	// ada's chore plus a stranger's; /me/chores returns only ada's
	owner := types.FlexInt(1000)
	resp = postJSON(t, ts, "/user_chore", types.SubmitChoreRequest{Script: "/mine.sh", Owner: &owner})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	other := types.FlexInt(2000)
	resp = postJSON(t, ts, "/user_chore", types.SubmitChoreRequest{Script: "/other.sh", Owner: &other})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/me/chores", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var mine []types.Chore
	decodeBody(t, resp, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, "/mine.sh", mine[0].Script)

	// /me/cancel refuses a chore the token's user does not own
	all := cpt.Consult("", true)
	var otherID string
	for _, chore := range all {
		if chore.Script == "/other.sh" {
			otherID = chore.ChoreID
		}
	}
	require.NotEmpty(t, otherID)

	payload, _ := json.Marshal(types.CancelRequest{ChoreID: otherID})
	req, err = http.NewRequest(http.MethodPost, ts.URL+"/me/cancel", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMeWithoutTokenIs401(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/me/chores")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/health", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
