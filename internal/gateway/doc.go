// Package gateway wires metrosha-gateway together and serves its HTTP surface.
//
// # Gateway
//
// New opens the store selected by database.driver (or takes one through
// WithStore), builds the token service, password hasher, completion client,
// transcript manager, account service and session orchestrator, and mounts
// them on one ServeMux. Run binds server.http_addr; Shutdown stops the HTTP
// server, ends live chat sessions with a going-away close frame and closes the
// store.
//
// # HTTP API
//
//   - GET /api/system/ping - Liveness string "pong"
//   - POST /api/user/create - Register, returns {user_token}
//   - POST /api/user/login - OAuth2 password form, returns {access_token, token_type}
//   - GET /api/user/ - Caller's identity (bearer)
//   - PATCH /api/user/ - Change role, age, gender (bearer)
//   - DELETE /api/user/ - Delete the caller's identity (bearer)
//   - GET /api/ai/ - WebSocket chat, token in ?Authorization=
//   - GET /api/ai/history - Caller's transcript, ?format=html for a rendered page (bearer)
//   - DELETE /api/ai/history - Collapse the transcript to its last message (bearer)
//   - GET /api/ai/usage - Caller's completion token totals (bearer)
//   - GET /health, GET /health/ready - Liveness and store readiness
//   - GET /metrics - Prometheus exposition when metrics.enabled
//
// Errors are JSON {"error": kind, "detail": message} with the kind's status.
// CORS allows every origin.
package gateway
