// Package metric exposes meshsync's Prometheus metrics.
//
//   - prometheus.go: sync, transport and snapshot series, plus the /metrics handler
//   - collector.go: a collector that samples the orchestrator's status on scrape
//
// Each Registry owns its own prometheus.Registry so tests and multiple
// daemons in one process do not collide on the global default.
package metric
