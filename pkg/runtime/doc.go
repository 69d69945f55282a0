/*
Package runtime is the sailor's execution engine: it turns launch
requests into supervised child processes running under the submitting
user's identity.

	launch ──► resolve identity / workdir / cpu set
	             │
	             ▼
	     /bin/bash -c <wrapped script>     (new session, credentials,
	             │                          affinity, thread caps,
	             ▼                          GPU visibility)
	        running table                  running_chores.json
	             │
	             ▼
	          watcher ──► Running ──► wait ──► Done | Failed | Canceled

Each chore gets exactly one watcher and exactly one terminal report.
Cancellation flags the persisted entry first, then walks the kill
ladder (TERM group → TERM leader → grace → KILL → descendant sweep);
the watcher, not the cancel path, delivers the terminal report.

After an agent restart Recover re-adopts still-live processes from the
persisted running table and finalizes the dead ones.
*/
package runtime
