// Package metrics provides Prometheus metrics, health checking, and
// periodic gauge collection for the captain and sailor daemons.
//
// # Overview
//
// The package exposes three surfaces:
//
//   - Counters and histograms incremented inline by the captain, the
//     API layer, and the sailor runtime.
//   - Store-derived gauges (chores by status, crew by status, per-sailor
//     usage) refreshed by a background Collector.
//   - Health and readiness handlers backed by a component registry.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────┐
//	│                 HTTP Endpoints                  │
//	│   /metrics         /health         /ready      │
//	└──────┬────────────────┬───────────────┬────────┘
//	       │                │               │
//	┌──────▼──────┐  ┌──────▼───────────────▼────────┐
//	│ Prometheus  │  │        HealthChecker          │
//	│  Registry   │  │  components + critical set    │
//	└──────▲──────┘  └──────▲────────────────────────┘
//	       │                │
//	┌──────┴──────┐  ┌──────┴────────────────────────┐
//	│  Collector  │  │ RegisterComponent(...) calls  │
//	│ (15s cycle) │  │ from captain/sailor daemons   │
//	└──────▲──────┘  └───────────────────────────────┘
//	       │
//	  fetch func() Snapshot
//
// # Usage
//
// Inline metrics are package-level variables registered in init:
//
//	metrics.SubmissionsTotal.Inc()
//	metrics.ReportsTotal.WithLabelValues("done").Inc()
//
//	timer := metrics.NewTimer()
//	// ... work ...
//	timer.ObserveDuration(metrics.ReconcileDuration)
//
// Gauges are published by a Collector fed from a snapshot function so
// the metrics package never imports the captain:
//
//	collector := metrics.NewCollector(captain.MetricsSnapshot)
//	collector.Start()
//	defer collector.Stop()
//
// Health checking is a shared registry. Each daemon declares which
// components gate readiness and then reports into the registry:
//
//	metrics.SetCriticalComponents("storage", "scheduler", "api")
//	metrics.RegisterComponent("storage", true, "")
//
// # Integration Points
//
//   - pkg/api mounts Handler(), HealthHandler, and ReadyHandler.
//   - pkg/captain increments submission, assignment, cancel, report,
//     and purge counters and provides the collector snapshot.
//   - pkg/scheduler and pkg/reconciler time their passes with Timer.
//   - pkg/sailor and pkg/runtime maintain the sailor-side series.
//
// # See Also
//
//   - pkg/api for endpoint wiring
//   - pkg/captain for the snapshot source
package metrics
