/*
Package reconciler runs the captain's cleanup and enforcement loop.

Every five seconds one cycle walks the current chores, crew and users
snapshots and applies the four enforcement passes in order:

	┌──────────────────────────────────────────────────────────┐
	│                   Reconcile Cycle (5 s)                  │
	├──────────────────────────────────────────────────────────┤
	│ (a) per-user time budgets   → cancel_requested           │
	│ (b) per-sailor max_time     → cancel_requested           │
	│ (c) stuck cancel_requested  → finalize after 300 s TTL   │
	│ (d) terminal chores         → purge after 120 s TTL      │
	└──────────────────────────────────────────────────────────┘

Each marked chore is durably written before its sailor is asked to
kill it, and every network call is best effort: a sailor that never
answers is finalized by pass (c) on a later cycle. Sub-pass failures
are logged and never stop the loop.

# Usage

	recon := reconciler.NewReconciler(cpt)
	recon.Start()
	defer recon.Stop()
*/
package reconciler
