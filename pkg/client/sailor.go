package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/harborworks/flotilla/pkg/types"
)

const (
	launchTimeout = 5 * time.Second
	cancelTimeout = 3 * time.Second
)

// SailorClient is the captain's side of the wire: it dispatches
// launches and forwards cancels to sailor agents.
type SailorClient struct {
	http *http.Client
}

// NewSailorClient creates a client for captain-to-sailor calls
func NewSailorClient() *SailorClient {
	return &SailorClient{http: cleanhttp.DefaultClient()}
}

// Launch asks the sailor to start a chore. The call has a short
// deadline: an unreachable sailor must fail fast so the assignment
// pass can roll the reservation back.
func (s *SailorClient) Launch(ctx context.Context, sailor types.Sailor, req types.LaunchRequest) error {
	ctx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()

	return s.post(ctx, sailorURL(sailor, "/captain_request"), req)
}

// Cancel asks the sailor to terminate a chore. Best effort: callers
// log failures and rely on the TTL finalizer.
func (s *SailorClient) Cancel(ctx context.Context, sailor types.Sailor, choreID string) error {
	ctx, cancel := context.WithTimeout(ctx, cancelTimeout)
	defer cancel()

	return s.post(ctx, sailorURL(sailor, "/captain_cancel"), types.CancelRequest{ChoreID: choreID})
}

func (s *SailorClient) post(ctx context.Context, target string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach sailor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func sailorURL(sailor types.Sailor, path string) string {
	port := sailor.Port
	if port == 0 {
		port = 8001
	}
	return fmt.Sprintf("http://%s:%d%s", sailor.IP, port, path)
}
