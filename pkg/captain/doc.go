/*
Package captain implements the Flotilla orchestrator core.

The captain is the single control plane of a fleet: it owns the crew,
chores and users stores, decides every chore placement, enforces the
per-user and per-sailor budgets, and is the only writer of chore state.
Sailors and CLI clients talk to it over the HTTP surface in pkg/api;
everything in this package is transport-free and directly callable from
tests.

# Architecture

	┌─────────────────────────── CAPTAIN ───────────────────────────┐
	│                                                               │
	│  pkg/api handlers ──────────┐                                 │
	│                             ▼                                 │
	│  ┌─────────────────────────────────────────────┐              │
	│  │                 Captain                     │              │
	│  │  - SubmitChore / CancelChore / Consult      │              │
	│  │  - Prereg / Register / Awake / Report       │              │
	│  │  - AssignPending (assignment pass)          │              │
	│  │  - ReconcileOnce (cleanup/enforcement)      │              │
	│  │  - TokenManager + Authenticator seam        │              │
	│  └──────┬──────────────┬──────────────┬────────┘              │
	│         ▼              ▼              ▼                       │
	│   crew.json       chores.json     users.json                  │
	│   (FileStore)     (FileStore)     (FileStore)                 │
	│                                                               │
	│  events.Broker ──► AuditLogger (structured audit trail)       │
	│  SailorDialer  ──► POST /captain_request, /captain_cancel     │
	└───────────────────────────────────────────────────────────────┘

# Core Components

Captain:
  - Store-owning coordinator; every mutation goes through a FileStore
    Update so concurrent endpoints serialize per table.
  - Publishes chore.* and sailor.* events for the audit trail.

Assignment pass (assign.go):
  - Scans pending chores oldest-first, filters alive crew by service
    tag and free capacity, picks the sailor with the most free CPUs
    (name order breaks ties), reserves optimistically, dispatches, and
    rolls the reservation back if the dispatch fails.

Reconciliation (reconcile.go):
  - Marks sailors down past the heartbeat threshold, cancels chores
    over the per-user or per-sailor time budget, finalizes cancels the
    sailor never acknowledged, and purges terminal chores past the TTL.

TokenManager (token.go):
  - Random 32-byte hex session tokens with TTL and an expiry sweep;
    backs /login and the /me endpoints.

# Consistency Rules

  - cancel_requested is persisted before the cancel is forwarded, so a
    captain crash cannot lose a decided cancel.
  - Terminal transitions are idempotent: a duplicate report of the same
    terminal status is a no-op and releases the reservation only once.
  - Used counters on a sailor are re-derived from the chores store at
    registration, never reset while assignments are in flight.

# Integration Points

  - pkg/api exposes the endpoint surface and maps the sentinel errors
    (ErrInvalid, ErrUnauthorized, ErrForbidden, ErrNotFound,
    ErrNotImplemented) to status codes.
  - pkg/scheduler and pkg/reconciler drive AssignPending and
    ReconcileOnce on their tickers.
  - pkg/client carries the SailorDialer implementation used in
    production.
*/
package captain
