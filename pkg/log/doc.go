/*
Package log provides structured logging for Flotilla using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ───────────────────┐
	│                                                        │
	│  ┌──────────────────────────────────────────┐          │
	│  │            Global Logger                 │          │
	│  │  - Zerolog instance                      │          │
	│  │  - Initialized via log.Init()            │          │
	│  │  - Thread-safe for concurrent use        │          │
	│  └──────────────────┬───────────────────────┘          │
	│                     │                                  │
	│  ┌──────────────────▼───────────────────────┐          │
	│  │           Configuration                  │          │
	│  │  - Level: debug/info/warn/error          │          │
	│  │  - Format: JSON or console (human)       │          │
	│  │  - Output: stdout, file, custom writer   │          │
	│  └──────────────────┬───────────────────────┘          │
	│                     │                                  │
	│  ┌──────────────────▼───────────────────────┐          │
	│  │         Context Loggers                  │          │
	│  │  - WithComponent("scheduler")            │          │
	│  │  - WithSailor("alpha")                   │          │
	│  │  - WithChoreID("1724500000123")          │          │
	│  └──────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

# Usage

Initializing the logger:

	import "github.com/harborworks/flotilla/pkg/log"

	// JSON output (daemons)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	// Console output (CLI)
	log.Init(log.Config{
		Level:      log.WarnLevel,
		JSONOutput: false,
	})

Component loggers:

	logger := log.WithComponent("reconciler")
	logger.Info().Str("chore_id", id).Msg("finalized stuck cancel")

Per-record fields stay on the event, not the logger:

	logger.Warn().Str("sailor", name).Msg("heartbeat missed")
	logger.Error().Err(err).Str("chore_id", choreID).Msg("dispatch failed")

# Integration Points

Used by every Flotilla package:
  - pkg/captain: submission, assignment, report ingestion
  - pkg/scheduler, pkg/reconciler: background loop cycles
  - pkg/sailor, pkg/runtime: launch, watcher, cancel ladder
  - pkg/api: request-level errors
  - pkg/storage: snapshot read/write failures
  - pkg/events: audit log sink

# Best Practices

  - Initialize once at process start, before any component starts.
  - Daemons log JSON at info; CLI commands log console at warn.
  - Background loops log per-item failures and continue; they never panic.
  - Use child loggers for recurring context instead of repeating fields.

# See Also

  - pkg/events: structured audit trail on top of this package
  - pkg/metrics: numeric counterparts to logged incidents
*/
package log
