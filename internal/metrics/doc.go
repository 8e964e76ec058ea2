// Package metrics collects counters about the monitor's own work.
//
// Producers (the fleet scheduler, the proxy) send events over a buffered
// channel; a single goroutine folds them into:
//   - probe counts and last status per endpoint
//   - status distribution and up/down transitions per endpoint
//   - probe response-time percentiles (P50, P95, P99)
//   - completed and skipped cycle counts with cycle durations
//   - proxy fetch counts, failures and upstream status codes
//
// Emit never blocks; when the buffer is full the event is dropped.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:     metrics.EventProbeCompleted,
//		Endpoint: "GitHub",
//		Status:   "online",
//		Duration: 150 * time.Millisecond,
//	})
//
//	snapshot := collector.Snapshot()
package metrics
