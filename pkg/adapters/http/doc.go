// Package http exposes the twin3 conversation engine over a JSON HTTP API
// routed with chi, with per-session Server-Sent Events for live updates.
package http
