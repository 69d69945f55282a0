package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/harborworks/flotilla/pkg/storage"
	"github.com/harborworks/flotilla/pkg/types"
)

// DefaultCaptainAddr is where the CLI looks when discovery finds nothing
const DefaultCaptainAddr = "127.0.0.1:8000"

// APIError carries the HTTP status and the server's detail message
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
}

// CaptainClient talks to the captain's HTTP API. It is shared by the
// CLI commands and by the sailor agent (registration, heartbeat,
// reports).
type CaptainClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewCaptainClient creates a client for the captain at host:port
func NewCaptainClient(addr string) *CaptainClient {
	httpClient := cleanhttp.DefaultClient()
	httpClient.Timeout = 10 * time.Second

	return &CaptainClient{
		baseURL: "http://" + strings.TrimPrefix(addr, "http://"),
		http:    httpClient,
	}
}

// WithToken returns a copy of the client that sends the bearer token
// on every request, for the /me endpoints.
func (c *CaptainClient) WithToken(token string) *CaptainClient {
	copied := *c
	copied.token = token
	return &copied
}

// SetTimeout overrides the per-request timeout. The sailor agent uses
// this to keep heartbeat and report posts short.
func (c *CaptainClient) SetTimeout(timeout time.Duration) {
	c.http.Timeout = timeout
}

// BaseURL returns the captain address the client talks to
func (c *CaptainClient) BaseURL() string {
	return c.baseURL
}

// Index probes GET / and returns the captain's banner
func (c *CaptainClient) Index(ctx context.Context) (*types.IndexResponse, error) {
	var out types.IndexResponse
	if err := c.get(ctx, "/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Prereg adds or updates a sailor on the captain's roster
func (c *CaptainClient) Prereg(ctx context.Context, req types.PreregRequest) error {
	return c.post(ctx, "/prereg", req, nil)
}

// Register announces a sailor's capacity to the captain
func (c *CaptainClient) Register(ctx context.Context, req types.RegisterRequest) error {
	return c.post(ctx, "/sailor_register", req, nil)
}

// Awake sends a sailor heartbeat
func (c *CaptainClient) Awake(ctx context.Context, name string) error {
	return c.post(ctx, "/sailor_awake", types.AwakeRequest{Name: name}, nil)
}

// Report delivers a chore status report from a sailor
func (c *CaptainClient) Report(ctx context.Context, req types.ReportRequest) error {
	return c.post(ctx, "/sailor_report", req, nil)
}

// SubmitChore submits a chore and returns its assigned chore_id
func (c *CaptainClient) SubmitChore(ctx context.Context, req types.SubmitChoreRequest) (string, error) {
	var out types.SubmitChoreResponse
	if err := c.post(ctx, "/user_chore", req, &out); err != nil {
		return "", err
	}
	return out.ChoreID, nil
}

// CancelChore asks the captain to cancel a chore
func (c *CaptainClient) CancelChore(ctx context.Context, choreID, reason string) error {
	return c.post(ctx, "/user_cancel", types.CancelRequest{ChoreID: choreID, Reason: reason}, nil)
}

// Consult lists chores. With owner empty and all false the captain
// scopes the listing to its own uid.
func (c *CaptainClient) Consult(ctx context.Context, owner string, all bool) ([]types.Chore, error) {
	query := url.Values{}
	if owner != "" {
		query.Set("owner", owner)
	}
	if all {
		query.Set("all", "true")
	}

	var out []types.Chore
	if err := c.get(ctx, "/user_consult", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Crew lists the sailors with derived status and seen_ago
func (c *CaptainClient) Crew(ctx context.Context) ([]types.CrewMember, error) {
	var out []types.CrewMember
	if err := c.get(ctx, "/crew", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Users lists the user records
func (c *CaptainClient) Users(ctx context.Context) ([]types.User, error) {
	var out []types.User
	if err := c.get(ctx, "/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertUser merges fields into a user record
func (c *CaptainClient) UpsertUser(ctx context.Context, req types.UpsertUserRequest) error {
	return c.post(ctx, "/user_upsert", req, nil)
}

// Login exchanges credentials for a bearer token
func (c *CaptainClient) Login(ctx context.Context, username, password string) (string, error) {
	var out types.LoginResponse
	req := types.LoginRequest{Username: username, Password: password}
	if err := c.post(ctx, "/login", req, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// MyChores lists the chores owned by the token's user
func (c *CaptainClient) MyChores(ctx context.Context) ([]types.Chore, error) {
	var out []types.Chore
	if err := c.get(ctx, "/me/chores", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CancelMine cancels a chore owned by the token's user
func (c *CaptainClient) CancelMine(ctx context.Context, choreID, reason string) error {
	return c.post(ctx, "/me/cancel", types.CancelRequest{ChoreID: choreID, Reason: reason}, nil)
}

func (c *CaptainClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	return c.do(req, out)
}

func (c *CaptainClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *CaptainClient) do(req *http.Request, out interface{}) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach captain: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError extracts the {"detail": ...} body the captain and the
// sailor both answer errors with.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var detail types.ErrorResponse
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		return &APIError{StatusCode: resp.StatusCode, Detail: detail.Detail}
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
}

// Discover locates a running captain. It reads the flag file (the
// CAPTAIN_FLAG_FILE environment variable, falling back to
// ./flotilla-data/serve.json), probes GET /, and returns host:port.
// When nothing answers it returns the default address so commands can
// still produce a useful connection error.
func Discover(ctx context.Context) string {
	flagPath := os.Getenv("CAPTAIN_FLAG_FILE")
	if flagPath == "" {
		flagPath = "./flotilla-data/serve.json"
	}

	var flag types.ServeFlag
	if err := storage.LoadJSON(flagPath, &flag); err != nil || flag.Port == 0 {
		return DefaultCaptainAddr
	}

	addr := fmt.Sprintf("127.0.0.1:%d", flag.Port)
	probe := NewCaptainClient(addr)
	probe.SetTimeout(2 * time.Second)
	if _, err := probe.Index(ctx); err != nil {
		return DefaultCaptainAddr
	}
	return addr
}
