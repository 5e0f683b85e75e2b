package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "library_gateway"

type promMetrics struct {
	registry *prometheus.Registry

	dependencyCalls    *prometheus.CounterVec
	dependencyDuration *prometheus.HistogramVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	queueEvents        *prometheus.CounterVec
	backendHealthy     *prometheus.GaugeVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

func newPromMetrics() *promMetrics {
	p := &promMetrics{
		registry: prometheus.NewRegistry(),
		dependencyCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dependency",
				Name:      "calls_total",
				Help:      "Outbound calls to dependencies by response status.",
			},
			[]string{"dependency", "status"},
		),
		dependencyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dependency",
				Name:      "call_duration_seconds",
				Help:      "Duration of outbound dependency calls.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"dependency"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "breaker",
				Name:      "state",
				Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
			},
			[]string{"dependency"},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "breaker",
				Name:      "transitions_total",
				Help:      "Circuit breaker state transitions by target state.",
			},
			[]string{"dependency", "to"},
		),
		queueEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retry_queue",
				Name:      "events_total",
				Help:      "Retry queue activity by dependency and event.",
			},
			[]string{"dependency", "event"},
		),
		backendHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "healthy",
				Help:      "Replica health as seen by the health checker.",
			},
			[]string{"backend"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Inbound requests handled by the gateway.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of inbound requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"method", "route"},
		),
	}

	p.registry.MustRegister(
		p.dependencyCalls,
		p.dependencyDuration,
		p.breakerState,
		p.breakerTransitions,
		p.queueEvents,
		p.backendHealthy,
		p.httpRequests,
		p.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	return p
}

func (p *promMetrics) observe(event MetricEvent) {
	switch event.Type {
	case EventCallCompleted:
		p.dependencyCalls.WithLabelValues(event.Dependency, statusLabel(event.StatusCode)).Inc()
		p.dependencyDuration.WithLabelValues(event.Dependency).Observe(event.Duration.Seconds())
	case EventHealthChanged:
		p.backendHealthy.WithLabelValues(event.Backend).Set(boolToFloat(event.Healthy))
	case EventBreakerChanged:
		p.breakerState.WithLabelValues(event.Dependency).Set(breakerStateValue(event.State))
		p.breakerTransitions.WithLabelValues(event.Dependency, event.State).Inc()
	case EventRequestQueued, EventReplaySucceeded, EventReplayFailed, EventDeadLettered:
		p.queueEvents.WithLabelValues(event.Dependency, string(event.Type)).Inc()
	case EventInboundCompleted:
		p.httpRequests.WithLabelValues(event.Method, event.Route, statusLabel(event.StatusCode)).Inc()
		p.httpDuration.WithLabelValues(event.Method, event.Route).Observe(event.Duration.Seconds())
	}
}

func statusLabel(statusCode int) string {
	if statusCode == 0 {
		return "error"
	}
	return strconv.Itoa(statusCode)
}

func breakerStateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF-OPEN":
		return 2
	default:
		return 0
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
