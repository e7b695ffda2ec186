// Package server provides the HTTP surface of the bridge.
//
//   - Dashboard: the embedded HTML page at "/"
//   - REST API: "/api/entities" and "/api/entities/{key}" snapshots
//   - Server-Sent Events: update batches at "/api/sse"
//   - Buttons: "POST /api/press/{key}"
//   - Metrics: Prometheus exposition at "/metrics" when configured
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
