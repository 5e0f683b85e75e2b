// Package metrics collects gateway metrics through a channel-based event
// pipeline: outbound dependency calls, replica health, circuit breaker
// transitions, retry queue activity and inbound request outcomes.
//
// Producers call Emit, which never blocks; a single goroutine started with
// Start folds events into an in-memory aggregate (served as JSON by
// Handler) and into Prometheus collectors (served by PrometheusHandler).
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventCallCompleted,
//		Dependency: "library",
//		Backend:    "http://library:8060",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
// Pending events are drained when the context is cancelled.
package metrics
