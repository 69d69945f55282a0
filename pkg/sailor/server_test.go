package sailor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborworks/flotilla/pkg/runtime"
	"github.com/harborworks/flotilla/pkg/types"
)

type fakeLauncher struct {
	mu        sync.Mutex
	launchErr error
	launches  []types.LaunchRequest
	cancels   []string
}

func (f *fakeLauncher) Launch(req types.LaunchRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.launchErr != nil {
		return f.launchErr
	}
	f.launches = append(f.launches, req)
	return nil
}

func (f *fakeLauncher) Cancel(choreID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, choreID)
	return nil
}

func newAgentServer(t *testing.T, launcher *fakeLauncher) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(launcher).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLaunchEndpoint(t *testing.T) {
	launcher := &fakeLauncher{}
	ts := newAgentServer(t, launcher)

	req := types.LaunchRequest{
		ChoreID:    "100",
		Script:     "/run.sh",
		Ressources: types.NewResources(2, 1),
		Owner:      types.FlexInt(1000),
	}
	resp := post(t, ts, "/captain_request", req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, launcher.launches, 1)
	assert.Equal(t, "100", launcher.launches[0].ChoreID)
	assert.Equal(t, 2, launcher.launches[0].Ressources.NeedCPUs())
}

func TestLaunchErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad request", fmt.Errorf("%w: script is required", runtime.ErrBadRequest), http.StatusBadRequest},
		{"not permitted", fmt.Errorf("%w: uid mismatch", runtime.ErrNotPermitted), http.StatusForbidden},
		{"start failure", fmt.Errorf("exec: no such file"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newAgentServer(t, &fakeLauncher{launchErr: tt.err})

			resp := post(t, ts, "/captain_request", types.LaunchRequest{ChoreID: "1", Script: "/x.sh"})
			assert.Equal(t, tt.status, resp.StatusCode)

			var body types.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Detail)
		})
	}
}

func TestCancelEndpointVariants(t *testing.T) {
	launcher := &fakeLauncher{}
	ts := newAgentServer(t, launcher)

	for _, path := range []string{"/captain_cancel", "/captain_cancels", "/captain_cancels/"} {
		resp := post(t, ts, path, types.CancelRequest{ChoreID: "55"})
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
	assert.Equal(t, []string{"55", "55", "55"}, launcher.cancels)
}

func TestCancelRequiresChoreID(t *testing.T) {
	ts := newAgentServer(t, &fakeLauncher{})

	resp := post(t, ts, "/captain_cancel", types.CancelRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMalformedBody(t *testing.T) {
	ts := newAgentServer(t, &fakeLauncher{})

	resp, err := http.Post(ts.URL+"/captain_request", "application/json", bytes.NewReader([]byte("{oops")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newAgentServer(t, &fakeLauncher{})

	resp, err := http.Get(ts.URL + "/captain_request")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
