// Package metric provides Prometheus metrics for dirmesh.
//
// Metrics include:
//
//   - Connection and admission counters per listener
//   - Command counters and latency histograms
//   - Peer, exchange and relay statistics per federation
//   - Subscriber and delivery counters
//   - Directory size, read at scrape time
//
// Metrics are exposed at /metrics in Prometheus format by the admin
// HTTP server.
package metric
