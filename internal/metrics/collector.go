package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type EventType string

const (
	EventCallCompleted    EventType = "call_completed"
	EventHealthChanged    EventType = "health_changed"
	EventBreakerChanged   EventType = "breaker_changed"
	EventRequestQueued    EventType = "request_queued"
	EventReplaySucceeded  EventType = "replay_succeeded"
	EventReplayFailed     EventType = "replay_failed"
	EventDeadLettered     EventType = "dead_lettered"
	EventInboundCompleted EventType = "inbound_completed"
)

// MetricEvent carries whichever fields its Type needs. StatusCode 0 on a
// completed call means the replica never answered.
type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Dependency string
	Backend    string
	Method     string
	Route      string
	Duration   time.Duration
	StatusCode int
	Healthy    bool
	State      string
}

// Emitter accepts metric events without blocking the caller.
type Emitter interface {
	Emit(event MetricEvent)
}

type discard struct{}

func (discard) Emit(MetricEvent) {}

// Discard drops every event.
var Discard Emitter = discard{}

type Collector struct {
	eventCh    chan MetricEvent
	metrics    *Metrics
	prometheus *promMetrics
	logger     *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh:    make(chan MetricEvent, bufferSize),
		metrics:    NewMetrics(),
		prometheus: newPromMetrics(),
		logger:     logger,
	}
}

// Emit queues the event for the collector goroutine. Events are dropped
// when the buffer is full.
func (c *Collector) Emit(event MetricEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Metrics event dropped", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventCallCompleted:
		c.metrics.RecordCall(event.Dependency, event.Backend, event.Duration, event.StatusCode)
	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Backend, event.Healthy)
	case EventBreakerChanged:
		c.metrics.RecordBreakerState(event.Dependency, event.State)
	case EventRequestQueued, EventReplaySucceeded, EventReplayFailed, EventDeadLettered:
		c.metrics.RecordQueueEvent(event.Dependency, event.Type)
	case EventInboundCompleted:
		c.metrics.RecordInbound(event.StatusCode)
	default:
		return
	}

	c.prometheus.observe(event)
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(strategy string) Snapshot {
	return c.metrics.Snapshot(strategy)
}

// Registry holds the Prometheus collectors fed by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.prometheus.registry
}
