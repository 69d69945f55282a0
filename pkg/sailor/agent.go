package sailor

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborworks/flotilla/pkg/client"
	"github.com/harborworks/flotilla/pkg/log"
	"github.com/harborworks/flotilla/pkg/metrics"
	"github.com/harborworks/flotilla/pkg/types"
)

// HeartbeatInterval is how often the agent posts its liveness. The
// captain drops a sailor after 10 s of silence, so 500 ms leaves room
// for a burst of lost posts.
const HeartbeatInterval = 500 * time.Millisecond

// Agent keeps the captain informed: one registration on start, then
// the heartbeat loop.
type Agent struct {
	cfg     Config
	captain *client.CaptainClient
	logger  zerolog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewAgent creates an agent for the given node config
func NewAgent(cfg Config, captain *client.CaptainClient) *Agent {
	return &Agent{
		cfg:     cfg,
		captain: captain,
		logger:  log.WithComponent("sailor"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Register announces the node's capacity to the captain. Best effort:
// a captain that is down now will still mark the sailor alive from its
// preregistered record once heartbeats get through.
func (a *Agent) Register(ctx context.Context) error {
	req := types.RegisterRequest{
		Name: a.cfg.Name,
		IP:   advertiseIP(a.cfg.CaptainAddr()),
		Port: types.FlexInt(a.cfg.Port),
		CPUs: types.FlexInt(a.cfg.CPUs),
		GPUs: a.cfg.GPUs,
		RAM:  types.FlexInt(a.cfg.RAM),
	}

	if err := a.captain.Register(ctx, req); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	a.logger.Info().
		Str("name", a.cfg.Name).
		Str("ip", req.IP).
		Int("cpus", a.cfg.CPUs).
		Int("gpus", len(a.cfg.GPUs)).
		Msg("Registered with captain")
	return nil
}

// Start begins the heartbeat loop
func (a *Agent) Start() {
	a.logger.Info().Dur("interval", HeartbeatInterval).Msg("Starting heartbeat")
	metrics.RegisterComponent("heartbeat", true, "")
	go a.run()
}

// Stop stops the heartbeat loop and waits for it to exit
func (a *Agent) Stop() {
	a.logger.Info().Msg("Stopping heartbeat")
	close(a.stopCh)
	<-a.doneCh
	metrics.UpdateComponent("heartbeat", false, "stopped")
}

func (a *Agent) run() {
	defer close(a.doneCh)

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// errors are swallowed: the captain's staleness rule is the
			// arbiter of liveness, not a single lost post
			if err := a.captain.Awake(context.Background(), a.cfg.Name); err != nil {
				metrics.HeartbeatFailuresTotal.Inc()
				metrics.UpdateComponent("heartbeat", false, err.Error())
				a.logger.Debug().Err(err).Msg("Heartbeat failed")
			} else {
				metrics.UpdateComponent("heartbeat", true, "")
			}
		case <-a.stopCh:
			return
		}
	}
}

// advertiseIP derives the address the captain should dial back on by
// routing a UDP socket toward it and reading the local end. No packet
// is sent. Falls back to loopback when the route cannot be resolved.
func advertiseIP(captainAddr string) string {
	conn, err := net.Dial("udp", captainAddr)
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
