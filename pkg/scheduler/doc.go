/*
Package scheduler runs the captain's periodic assignment pass.

Most assignment passes are event-driven: a submission, a sailor
registration or a terminal report triggers one inline. The scheduler is
the time-driven backstop that re-offers stranded pending chores every
five seconds, so a chore left behind by a failed dispatch or a sailor
that silently recovered is placed within one interval.

	┌──────────────────────────────────────────────┐
	│              Scheduler Loop                  │
	│             (every 5 seconds)                │
	└──────────────────┬───────────────────────────┘
	                   ▼
	         captain.AssignPending
	                   │
	     pending chores × alive crew with capacity
	                   │
	   reserve → dispatch → (rollback on failure)

The loop holds no state of its own; each pass reads the current crew
and chores snapshots, so a restart costs at most one interval.

# Usage

	sched := scheduler.NewScheduler(cpt)
	sched.Start()
	defer sched.Stop()
*/
package scheduler
