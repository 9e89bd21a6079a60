// Package api serves the devhost control API: global lifecycle operations,
// per-site toggles and tools, settings, interpreters, manageable services and
// a websocket event stream under /api/v1, plus /healthz, /metrics and /mcp.
//
// Requests to /api/v1 and /mcp carry the token in the X-API-Key header or a
// token query parameter when one is configured.
package api
