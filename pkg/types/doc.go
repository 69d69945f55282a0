/*
Package types defines the shared data model and wire types for Flotilla.

The three captain stores (crew, chores, users), the sailor running table,
and every HTTP body exchanged between the CLI, the captain and the sailors
are defined here. JSON field names are the wire and on-disk contract; they
must not change.

# Core Types

Sailor:
  - Worker node record keyed by name: identity, advertised services,
    capacity (cpus/gpus/ram), used counters, heartbeat timestamp
  - Status is stored, but readers should prefer DerivedStatus, which
    overrides with "down" when last_seen is older than AliveThresholdSeconds

Chore:
  - One script execution: request, assignment, timeline, disposition
  - Status machine: pending → assigned → running → done|failed, with
    cancel_requested as the intermediate cancellation state
  - Terminal states (done/failed/canceled) set end and imply the sailor
    reservation was released

User:
  - Per-uid policy: chores_limit (active-count budget) and time_limit
    (cumulative runtime budget, duration string)

RunningChore:
  - Sailor-side supervision entry: chore_id, pid, start, cancel flag

# Flexible JSON scalars

Payloads produced by loosely typed clients encode numbers inconsistently.
FlexInt accepts 4, "4" and 4.0; GPUSpec accepts a device count or an
explicit index list; StringList accepts an array or a comma-joined string;
UserID normalizes numeric uids to their decimal string form.

# Duration grammar

ParseTimeLimit parses "DD-hh:mm:ss" and "hh:mm:ss" (shorter forms pad
left). Invalid input yields 0, which every consumer treats as "limit
disabled"; policy fields never fail ingest.

# See Also

  - pkg/storage: persistence of these records
  - pkg/captain: the state machine that mutates them
*/
package types
