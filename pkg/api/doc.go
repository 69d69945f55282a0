/*
Package api is the captain's HTTP surface: JSON request/response
bodies, flat paths, no versioning.

	sailors ──► /prereg /sailor_register /sailor_awake /sailor_report
	users   ──► /user_chore /user_cancel /user_consult
	admin   ──► /crew /users /user_upsert
	tokens  ──► /login /me/chores /me/cancel
	ops     ──► /health /ready /metrics

Handlers decode, delegate to the captain, and encode; no orchestration
logic lives here. The captain's sentinel error kinds map onto status
codes (invalid→400, unauthorized→401, forbidden→403, not found→404,
not implemented→501, anything else→500) with a {"detail": ...} body.

Every route passes through the Interceptor, which records the request
counter and latency histogram and writes one structured log line per
request.
*/
package api
