package events

import (
	"github.com/harborworks/flotilla/pkg/log"
)

// AuditLogger subscribes to a broker and writes every event to the
// structured log, giving the captain a persistent trail of chore and
// sailor state changes.
type AuditLogger struct {
	broker *Broker
	sub    Subscriber
	doneCh chan struct{}
}

// NewAuditLogger creates an audit logger bound to the given broker
func NewAuditLogger(broker *Broker) *AuditLogger {
	return &AuditLogger{
		broker: broker,
		doneCh: make(chan struct{}),
	}
}

// Start subscribes and begins draining events into the log
func (a *AuditLogger) Start() {
	a.sub = a.broker.Subscribe()
	go a.run()
}

// Stop unsubscribes and waits for the drain loop to finish
func (a *AuditLogger) Stop() {
	a.broker.Unsubscribe(a.sub)
	<-a.doneCh
}

func (a *AuditLogger) run() {
	defer close(a.doneCh)

	logger := log.WithComponent("audit")
	for event := range a.sub {
		entry := logger.Info().
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Time("event_time", event.Timestamp)
		for key, value := range event.Metadata {
			entry = entry.Str(key, value)
		}
		entry.Msg(event.Message)
	}
}
