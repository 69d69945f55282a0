package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborworks/flotilla/pkg/captain"
	"github.com/harborworks/flotilla/pkg/log"
	"github.com/harborworks/flotilla/pkg/metrics"
)

// DefaultInterval is how often an enforcement cycle runs.
const DefaultInterval = 5 * time.Second

// Reconciler drives the captain's cleanup and enforcement loop:
// per-user time budgets, per-sailor max_time, stuck-cancel
// finalization and the terminal-chore purge.
type Reconciler struct {
	captain  *captain.Captain
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewReconciler creates a reconciler for the given captain
func NewReconciler(c *captain.Captain) *Reconciler {
	return &Reconciler{
		captain:  c,
		interval: DefaultInterval,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	r.logger.Info().Dur("interval", r.interval).Msg("Starting reconciler")
	metrics.RegisterComponent("reconciler", true, "")
	go r.run()
}

// Stop stops the reconciler and waits for the loop to exit
func (r *Reconciler) Stop() {
	r.logger.Info().Msg("Stopping reconciler")
	close(r.stopCh)
	<-r.doneCh
	metrics.UpdateComponent("reconciler", false, "stopped")
}

func (r *Reconciler) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// failures are already logged per sub-pass; the loop only
			// tracks component health
			if err := r.captain.ReconcileOnce(context.Background()); err != nil {
				metrics.UpdateComponent("reconciler", false, err.Error())
			} else {
				metrics.UpdateComponent("reconciler", true, "")
			}
		case <-r.stopCh:
			return
		}
	}
}
