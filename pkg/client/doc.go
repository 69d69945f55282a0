/*
Package client provides the HTTP clients for Flotilla's three wire legs.

The captain, the sailors, and the CLI all speak the same JSON-over-HTTP
contract; this package is the single place that contract is encoded on
the calling side.

# Architecture

	┌──────────┐   CaptainClient    ┌───────────┐
	│   CLI    │───────────────────▶│           │
	└──────────┘                    │  Captain  │
	┌──────────┐   CaptainClient    │           │
	│  Sailor  │───────────────────▶│  :8000    │
	│  agent   │  register/awake/   └─────┬─────┘
	│  :8001   │  report                  │
	└─────▲────┘                          │ SailorClient
	      └───────────────────────────────┘ launch/cancel

# Clients

CaptainClient covers every captain endpoint: chore submission and
cancel, consult, crew and user listings, prereg and upsert, login, the
bearer-scoped /me endpoints, and the sailor-originated register, awake,
and report posts. One client type serves both the CLI and the sailor
agent so the wire encoding never forks.

SailorClient covers the captain-to-sailor direction: chore launches
(5 s deadline, so a dead sailor fails the dispatch quickly and the
reservation can be rolled back) and cancel forwards (3 s, best effort).

Both are built on hashicorp/go-cleanhttp so outbound calls never share
the global default transport.

# Errors

Error responses carry {"detail": "..."} bodies. The clients decode them
into *APIError, which preserves the HTTP status code:

	_, err := captain.SubmitChore(ctx, req)
	if apiErr, ok := err.(*client.APIError); ok && apiErr.StatusCode == 403 {
		// chores limit reached
	}

# Discovery

The CLI finds a running captain without configuration: Discover reads
the flag file the captain writes on serve ({port, pid, started_at},
path from CAPTAIN_FLAG_FILE or ./flotilla-data/serve.json), probes
GET /, and falls back to 127.0.0.1:8000.

# Usage

	captain := client.NewCaptainClient(client.Discover(ctx))

	choreID, err := captain.SubmitChore(ctx, types.SubmitChoreRequest{
		Script:  "/home/alice/train.sh",
		Service: "gpu",
	})

# See Also

  - pkg/types for the request and response records
  - pkg/api for the server half of the contract
*/
package client
