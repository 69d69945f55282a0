/*
Package events provides an in-memory event broker for Flotilla's pub/sub messaging.

The events package implements a lightweight event bus for broadcasting fleet
events to interested subscribers. It supports asynchronous event delivery with
per-subscriber buffering, enabling loose coupling between the captain's
components for state changes, notifications, and auditing.

# Architecture

Flotilla's event system provides non-blocking pub/sub messaging with buffered
channels:

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Topic-agnostic (all events broadcast)    │          │
	│  │  - Non-blocking publish                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Publisher → Event Channel (buffer: 100)    │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop                              │          │
	│  │       ↓                                      │          │
	│  │  Subscriber Channels (buffer: 50 each)      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Event Types                       │          │
	│  │                                              │          │
	│  │  Chore Events:                              │          │
	│  │    - chore.submitted                        │          │
	│  │    - chore.assigned                         │          │
	│  │    - chore.running                          │          │
	│  │    - chore.done / failed / canceled         │          │
	│  │    - chore.cancel_requested                 │          │
	│  │    - chore.purged                           │          │
	│  │                                              │          │
	│  │  Sailor Events:                             │          │
	│  │    - sailor.preregistered                   │          │
	│  │    - sailor.registered                      │          │
	│  │    - sailor.unreachable                     │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Subscribers                      │          │
	│  │                                              │          │
	│  │  AuditLogger: Write every event to the log  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel

Event:
  - ID: Unique event identifier (UUID)
  - Type: Event type (chore.submitted, sailor.registered, etc.)
  - Timestamp: When event occurred
  - Message: Human-readable description
  - Metadata: Key-value pairs for additional context

Subscriber:
  - Channel that receives Event pointers
  - Buffered (50 events) to handle bursts
  - Created via broker.Subscribe()
  - Closed via broker.Unsubscribe()

AuditLogger:
  - Built-in subscriber that drains events into the structured log
  - Started by the captain daemon on boot
  - Gives operators a persistent trail of chore lifecycle changes

# Event Flow

Publish Flow:
 1. Publisher calls broker.Publish(event)
 2. Event added to main event channel (non-blocking)
 3. Broadcast loop receives event
 4. Event sent to all subscriber channels
 5. Subscribers receive event asynchronously
 6. Full subscriber buffers skip (no blocking)

# Usage

Creating and Starting Broker:

	import "github.com/harborworks/flotilla/pkg/events"

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Publishing Events:

	broker.Publish(events.NewEvent(
		events.EventChoreSubmitted,
		"chore accepted",
		map[string]string{
			"chore_id": chore.ChoreID,
			"owner":    chore.Owner,
		},
	))

Subscribing to Events:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
		}
	}()

Audit Logging:

	audit := events.NewAuditLogger(broker)
	audit.Start()
	defer audit.Stop()

# Integration Points

This package integrates with:

  - pkg/captain: Publishes chore and sailor state changes
  - pkg/reconciler: Publishes cancel and purge events
  - pkg/log: AuditLogger writes events to the structured log

# Event Types Catalog

Chore Events:

EventChoreSubmitted:
  - Published when: Submission accepted and stored as pending
  - Metadata: chore_id, owner

EventChoreAssigned:
  - Published when: Dispatch to a sailor succeeded
  - Metadata: chore_id, sailor

EventChoreRunning:
  - Published when: Sailor reported the process started
  - Metadata: chore_id, sailor

EventChoreDone / EventChoreFailed / EventChoreCanceled:
  - Published when: Terminal report ingested or cancel finalized
  - Metadata: chore_id, sailor, exit_code (when reported)

EventChoreCancelRequested:
  - Published when: A cancel was recorded, from any source
  - Metadata: chore_id, source

EventChorePurged:
  - Published when: Terminal chore removed by the TTL sweep
  - Metadata: chore_id

Sailor Events:

EventSailorPreregistered:
  - Published when: Operator added a sailor to the roster
  - Metadata: sailor

EventSailorRegistered:
  - Published when: Sailor announced itself with its capacity
  - Metadata: sailor, cpus, gpus

EventSailorUnreachable:
  - Published when: Dispatch failed and the reservation rolled back
  - Metadata: sailor, chore_id

# Design Patterns

Non-Blocking Publish:
  - Publish sends to buffered channel
  - Returns immediately (no waiting)
  - Events may be dropped if buffer full
  - Trade-off: Throughput over guaranteed delivery

Fan-Out Pattern:
  - Single event broadcast to all subscribers
  - Each subscriber gets own channel
  - Independent processing rates
  - Full buffers skip to prevent blocking

# Limitations

Current Limitations:
  - In-memory only (no persistence)
  - No event replay or history
  - No guaranteed delivery (best effort)
  - No topic-based filtering (all events broadcast)

Workarounds:
  - Persistence: AuditLogger writes everything to the structured log
  - Filtering: Filter at subscriber side by event type

# Best Practices

Do:
  - Always defer broker.Unsubscribe(sub)
  - Process events asynchronously in goroutine
  - Include relevant metadata in events
  - Start broker before publishing events

Don't:
  - Block in subscriber event loop
  - Forget to unsubscribe (causes leaks)
  - Rely on event delivery for critical operations

# See Also

  - pkg/captain for fleet state change events
  - pkg/log for the audit sink
*/
package events
