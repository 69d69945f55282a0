/*
Package sailor is the node agent: it loads the node config written by
setup, registers with the captain, heartbeats every 500 ms, and serves
the captain-facing launch/cancel endpoints in front of the execution
engine.

	resources.json ──► Config
	                     │
	      ┌──────────────┼───────────────┐
	      ▼              ▼               ▼
	   Agent          Server          runtime.Engine
	 (register,    (/captain_request,  (launch, watch,
	  heartbeat)    /captain_cancel)    cancel ladder)

The agent holds no scheduling state; the captain owns assignment and
the engine owns process supervision.
*/
package sailor
