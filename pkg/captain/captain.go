package captain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborworks/flotilla/pkg/events"
	"github.com/harborworks/flotilla/pkg/log"
	"github.com/harborworks/flotilla/pkg/metrics"
	"github.com/harborworks/flotilla/pkg/storage"
	"github.com/harborworks/flotilla/pkg/types"
)

// SailorDialer is the captain's outbound leg: dispatching launches and
// forwarding cancels to sailor agents. client.SailorClient implements
// it; tests substitute fakes.
type SailorDialer interface {
	Launch(ctx context.Context, sailor types.Sailor, req types.LaunchRequest) error
	Cancel(ctx context.Context, sailor types.Sailor, choreID string) error
}

// Config holds configuration for creating a Captain
type Config struct {
	DataDir            string
	Port               int
	CleanupTTL         time.Duration
	CancelRequestedTTL time.Duration
	TokenTTL           time.Duration
	FlagFile           string
}

// DefaultConfig returns the stock captain configuration
func DefaultConfig() Config {
	return Config{
		DataDir:            "./flotilla-data",
		Port:               8000,
		CleanupTTL:         120 * time.Second,
		CancelRequestedTTL: 300 * time.Second,
		TokenTTL:           time.Hour,
	}
}

// FromEnv overlays the CAPTAIN_* environment variables onto the config
func (cfg Config) FromEnv() Config {
	if secs, ok := envSeconds("CAPTAIN_CLEANUP_TTL"); ok {
		cfg.CleanupTTL = secs
	}
	if secs, ok := envSeconds("CAPTAIN_CANCEL_REQUESTED_TTL"); ok {
		cfg.CancelRequestedTTL = secs
	}
	if secs, ok := envSeconds("CAPTAIN_TOKEN_TTL"); ok {
		cfg.TokenTTL = secs
	}
	if path := os.Getenv("CAPTAIN_FLAG_FILE"); path != "" {
		cfg.FlagFile = path
	}
	return cfg
}

func envSeconds(name string) (time.Duration, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// FlagPath is where the discovery flag file is written
func (cfg Config) FlagPath() string {
	if cfg.FlagFile != "" {
		return cfg.FlagFile
	}
	return filepath.Join(cfg.DataDir, "serve.json")
}

// Captain is the central orchestrator: it owns the crew, chores and
// users stores and every state transition on them.
type Captain struct {
	cfg Config

	crew   *storage.FileStore[types.Sailor]
	chores *storage.FileStore[types.Chore]
	users  *storage.FileStore[types.User]

	sailors      SailorDialer
	tokenManager *TokenManager
	auth         Authenticator
	eventBroker  *events.Broker
	auditLogger  *events.AuditLogger
	logger       zerolog.Logger

	// chore_id issue guard: strictly increasing even within one millisecond
	idMu   sync.Mutex
	lastID int64

	// one assignment pass at a time
	assignMu sync.Mutex

	// serializes terminal-report ingestion so duplicates are idempotent
	reportMu sync.Mutex
}

// NewCaptain creates a Captain rooted at cfg.DataDir
func NewCaptain(cfg Config, dialer SailorDialer) (*Captain, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	eventBroker := events.NewBroker()
	eventBroker.Start()

	auditLogger := events.NewAuditLogger(eventBroker)
	auditLogger.Start()

	c := &Captain{
		cfg:          cfg,
		crew:         storage.NewFileStore[types.Sailor](filepath.Join(cfg.DataDir, "crew.json")),
		chores:       storage.NewFileStore[types.Chore](filepath.Join(cfg.DataDir, "chores.json")),
		users:        storage.NewFileStore[types.User](filepath.Join(cfg.DataDir, "users.json")),
		sailors:      dialer,
		tokenManager: NewTokenManager(),
		eventBroker:  eventBroker,
		auditLogger:  auditLogger,
		logger:       log.WithComponent("captain"),
	}

	return c, nil
}

// SetAuthenticator wires the login credential checker
func (c *Captain) SetAuthenticator(auth Authenticator) {
	c.auth = auth
}

// Config returns the captain's configuration
func (c *Captain) Config() Config {
	return c.cfg
}

// EventBroker returns the event broker
func (c *Captain) EventBroker() *events.Broker {
	return c.eventBroker
}

// Index answers GET /
func (c *Captain) Index() types.IndexResponse {
	return types.IndexResponse{OK: true, Message: "captain at your service"}
}

// WriteServeFlag writes the discovery flag file
func (c *Captain) WriteServeFlag() error {
	flag := types.ServeFlag{
		Port:      c.cfg.Port,
		PID:       os.Getpid(),
		StartedAt: time.Now().Unix(),
	}
	if err := storage.SaveJSON(c.cfg.FlagPath(), flag); err != nil {
		return fmt.Errorf("failed to write flag file: %w", err)
	}
	return nil
}

// RemoveServeFlag removes the discovery flag file
func (c *Captain) RemoveServeFlag() {
	if err := os.Remove(c.cfg.FlagPath()); err != nil && !os.IsNotExist(err) {
		c.logger.Warn().Err(err).Str("path", c.cfg.FlagPath()).Msg("Failed to remove flag file")
	}
}

// Login exchanges credentials for a bearer token
func (c *Captain) Login(ctx context.Context, username, password string) (*LoginToken, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("%w: login is not configured", ErrNotImplemented)
	}

	uid, err := c.auth.Authenticate(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrUnauthorized)
	}

	token, err := c.tokenManager.GenerateToken(uid, username, c.cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	c.logger.Info().Str("username", username).Int("uid", uid).Msg("User logged in")
	return token, nil
}

// Authorize resolves a bearer token to its login record
func (c *Captain) Authorize(token string) (*LoginToken, error) {
	lt, err := c.tokenManager.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return lt, nil
}

// MetricsSnapshot builds the gauge snapshot the metrics collector
// publishes. Derived sailor status uses the same staleness rule as
// scheduling.
func (c *Captain) MetricsSnapshot() metrics.Snapshot {
	now := time.Now().Unix()

	snap := metrics.Snapshot{
		ChoresByStatus: make(map[string]int),
		CrewByStatus:   make(map[string]int),
	}

	for _, chore := range c.chores.Load() {
		snap.ChoresByStatus[string(chore.Status)]++
	}

	for _, sailor := range c.crew.Load() {
		snap.CrewByStatus[string(sailor.DerivedStatus(now))]++
		snap.Sailors = append(snap.Sailors, metrics.SailorUsage{
			Name:         sailor.Name,
			UsedCPUs:     sailor.UsedCPUs,
			CapacityCPUs: sailor.CPUs,
			UsedGPUs:     sailor.UsedGPUs,
			CapacityGPUs: len(sailor.GPUs),
		})
	}
	sort.Slice(snap.Sailors, func(i, j int) bool { return snap.Sailors[i].Name < snap.Sailors[j].Name })

	return snap
}

// Shutdown stops the captain's background machinery
func (c *Captain) Shutdown() error {
	c.auditLogger.Stop()
	c.eventBroker.Stop()
	c.RemoveServeFlag()
	return nil
}

// nextChoreID issues a millisecond-timestamp chore id, strictly
// increasing even when two submissions land in the same millisecond.
func (c *Captain) nextChoreID() string {
	c.idMu.Lock()
	defer c.idMu.Unlock()

	id := time.Now().UnixMilli()
	if id <= c.lastID {
		id = c.lastID + 1
	}
	c.lastID = id
	return strconv.FormatInt(id, 10)
}

func (c *Captain) publish(eventType events.EventType, message string, metadata map[string]string) {
	if c.eventBroker == nil {
		return
	}
	c.eventBroker.Publish(events.NewEvent(eventType, message, metadata))
}

// ownerKey is the users-store key for a chore owner
func ownerKey(owner types.FlexInt) string {
	return strconv.Itoa(int(owner))
}
