// Package httpserver provides the admin HTTP endpoint of a DirMesh node.
//
// It is separate from the node protocol listeners and serves:
//
//   - GET /metrics: Prometheus text format
//   - GET /healthz: status, build, uptime, subscriber and peer counts
//   - GET /peers: self address and peers of each federation
//
// Requests pass RequestID, Recover, AccessLog and an optional NetworkACL.
package httpserver
