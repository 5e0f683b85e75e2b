package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	inbound       map[int]int64
	calls         map[string]int64
	failures      map[string]int64
	breakerStates map[string]string
	transitions   map[string]int64
	queue         map[string]map[EventType]int64
	backendDeps   map[string]string
	requests      map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	healthStatus  map[string]bool
	startTime     time.Time
}

type Snapshot struct {
	Uptime          time.Duration                `json:"uptime"`
	Strategy        string                       `json:"strategy"`
	InboundRequests int64                        `json:"inbound_requests"`
	InboundStatuses map[int]int64                `json:"inbound_statuses"`
	Dependencies    map[string]DependencyMetrics `json:"dependencies"`
	Backends        map[string]BackendMetrics    `json:"backends"`
}

type DependencyMetrics struct {
	Calls              int64  `json:"calls"`
	Failures           int64  `json:"failures"`
	BreakerState       string `json:"breaker_state,omitempty"`
	BreakerTransitions int64  `json:"breaker_transitions"`
	Queued             int64  `json:"queued"`
	Replayed           int64  `json:"replayed"`
	ReplayFailures     int64  `json:"replay_failures"`
	DeadLettered       int64  `json:"dead_lettered"`
}

type BackendMetrics struct {
	Dependency  string        `json:"dependency,omitempty"`
	Requests    int64         `json:"requests"`
	Healthy     bool          `json:"healthy"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		inbound:       make(map[int]int64),
		calls:         make(map[string]int64),
		failures:      make(map[string]int64),
		breakerStates: make(map[string]string),
		transitions:   make(map[string]int64),
		queue:         make(map[string]map[EventType]int64),
		backendDeps:   make(map[string]string),
		requests:      make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthStatus:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

// RecordCall counts a call as failed when the replica did not answer or
// answered with a 5xx.
func (m *Metrics) RecordCall(dependency, backend string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.calls[dependency]++
	if statusCode == 0 || statusCode >= http.StatusInternalServerError {
		m.failures[dependency]++
	}

	if backend == "" {
		return
	}

	m.backendDeps[backend] = dependency
	m.requests[backend]++
	m.responseTimes[backend] = append(m.responseTimes[backend], duration)
	if len(m.responseTimes[backend]) > maxSamples {
		m.responseTimes[backend] = m.responseTimes[backend][1:]
	}

	if m.statusCodes[backend] == nil {
		m.statusCodes[backend] = make(map[int]int64)
	}
	m.statusCodes[backend][statusCode]++
}

func (m *Metrics) UpdateHealthStatus(backend string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[backend] = healthy
}

func (m *Metrics) RecordBreakerState(dependency, state string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.breakerStates[dependency] = state
	m.transitions[dependency]++
}

func (m *Metrics) RecordQueueEvent(dependency string, event EventType) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.queue[dependency] == nil {
		m.queue[dependency] = make(map[EventType]int64)
	}
	m.queue[dependency][event]++
}

func (m *Metrics) RecordInbound(statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.inbound[statusCode]++
}

func (m *Metrics) Snapshot(strategy string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:          time.Since(m.startTime),
		Strategy:        strategy,
		InboundStatuses: make(map[int]int64, len(m.inbound)),
		Dependencies:    make(map[string]DependencyMetrics),
		Backends:        make(map[string]BackendMetrics),
	}

	for status, count := range m.inbound {
		snap.InboundStatuses[status] = count
		snap.InboundRequests += count
	}

	dependencies := make(map[string]bool)
	for dep := range m.calls {
		dependencies[dep] = true
	}
	for dep := range m.breakerStates {
		dependencies[dep] = true
	}
	for dep := range m.queue {
		dependencies[dep] = true
	}

	for dep := range dependencies {
		queue := m.queue[dep]
		snap.Dependencies[dep] = DependencyMetrics{
			Calls:              m.calls[dep],
			Failures:           m.failures[dep],
			BreakerState:       m.breakerStates[dep],
			BreakerTransitions: m.transitions[dep],
			Queued:             queue[EventRequestQueued],
			Replayed:           queue[EventReplaySucceeded],
			ReplayFailures:     queue[EventReplayFailed],
			DeadLettered:       queue[EventDeadLettered],
		}
	}

	backends := make(map[string]bool)
	for backend := range m.requests {
		backends[backend] = true
	}
	for backend := range m.healthStatus {
		backends[backend] = true
	}

	for backend := range backends {
		bm := BackendMetrics{
			Dependency:  m.backendDeps[backend],
			Requests:    m.requests[backend],
			Healthy:     m.healthStatus[backend],
			StatusCodes: make(map[int]int64, len(m.statusCodes[backend])),
		}
		for status, count := range m.statusCodes[backend] {
			bm.StatusCodes[status] = count
		}

		if durations := m.responseTimes[backend]; len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgResponse = average(sorted)
			bm.P50Response = percentile(sorted, 0.50)
			bm.P95Response = percentile(sorted, 0.95)
			bm.P99Response = percentile(sorted, 0.99)
		}

		snap.Backends[backend] = bm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
