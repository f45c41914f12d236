// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Tick outcomes per result and fetch latency
//   - Publish outcomes per result and pending broker acks
//   - Active jobs, running ticks and skipped ticks
//   - Archive rows dropped on buffer overflow
package metrics
