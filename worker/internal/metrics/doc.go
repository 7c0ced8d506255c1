// Package metrics instruments the sync cycle with Prometheus collectors on a
// private registry. The worker serves them on /metrics.
package metrics
