package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborworks/flotilla/pkg/captain"
	"github.com/harborworks/flotilla/pkg/log"
	"github.com/harborworks/flotilla/pkg/metrics"
)

// DefaultInterval is how often the periodic assignment pass runs.
const DefaultInterval = 5 * time.Second

// Scheduler drives the captain's periodic assignment pass. Submission,
// registration and report ingestion trigger passes of their own; this
// loop is the safety net that picks up chores stranded by a crashed
// dispatch or a sailor that came back without re-registering.
type Scheduler struct {
	captain  *captain.Captain
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewScheduler creates a scheduler for the given captain
func NewScheduler(c *captain.Captain) *Scheduler {
	return &Scheduler{
		captain:  c,
		interval: DefaultInterval,
		logger:   log.WithComponent("scheduler"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	s.logger.Info().Dur("interval", s.interval).Msg("Starting scheduler")
	metrics.RegisterComponent("scheduler", true, "")
	go s.run()
}

// Stop stops the scheduler and waits for the loop to exit
func (s *Scheduler) Stop() {
	s.logger.Info().Msg("Stopping scheduler")
	close(s.stopCh)
	<-s.doneCh
	metrics.UpdateComponent("scheduler", false, "stopped")
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.captain.AssignPending(context.Background())
		case <-s.stopCh:
			return
		}
	}
}
