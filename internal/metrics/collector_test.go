package metrics_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/library-gateway/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	AfterEach(func() {
		cancel()
	})

	Describe("event processing", func() {
		BeforeEach(func() {
			collector.Start(ctx)
		})

		It("should record completed dependency calls per replica", func() {
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventCallCompleted,
				Dependency: "library",
				Backend:    "http://library:8060",
				Duration:   20 * time.Millisecond,
				StatusCode: http.StatusOK,
			})
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventCallCompleted,
				Dependency: "library",
				Backend:    "http://library:8060",
				Duration:   40 * time.Millisecond,
				StatusCode: http.StatusServiceUnavailable,
			})

			Eventually(func() int64 {
				return collector.Snapshot("round-robin").Dependencies["library"].Calls
			}).Should(Equal(int64(2)))

			snap := collector.Snapshot("round-robin")
			Expect(snap.Strategy).To(Equal("round-robin"))
			Expect(snap.Dependencies["library"].Failures).To(Equal(int64(1)))

			backend := snap.Backends["http://library:8060"]
			Expect(backend.Dependency).To(Equal("library"))
			Expect(backend.Requests).To(Equal(int64(2)))
			Expect(backend.AvgResponse).To(Equal(30 * time.Millisecond))
			Expect(backend.StatusCodes).To(HaveKeyWithValue(http.StatusOK, int64(1)))
			Expect(backend.StatusCodes).To(HaveKeyWithValue(http.StatusServiceUnavailable, int64(1)))
		})

		It("should count calls without an answer as failures", func() {
			collector.Emit(metrics.MetricEvent{Type: metrics.EventCallCompleted, Dependency: "rating"})

			Eventually(func() int64 {
				return collector.Snapshot("").Dependencies["rating"].Failures
			}).Should(Equal(int64(1)))
		})

		It("should track replica health", func() {
			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventHealthChanged,
				Backend: "http://rating:8050",
				Healthy: true,
			})

			Eventually(func() bool {
				return collector.Snapshot("").Backends["http://rating:8050"].Healthy
			}).Should(BeTrue())
		})

		It("should track breaker transitions", func() {
			collector.Emit(metrics.MetricEvent{Type: metrics.EventBreakerChanged, Dependency: "library", State: "OPEN"})
			collector.Emit(metrics.MetricEvent{Type: metrics.EventBreakerChanged, Dependency: "library", State: "HALF-OPEN"})

			Eventually(func() int64 {
				return collector.Snapshot("").Dependencies["library"].BreakerTransitions
			}).Should(Equal(int64(2)))
			Expect(collector.Snapshot("").Dependencies["library"].BreakerState).To(Equal("HALF-OPEN"))
		})

		It("should count retry queue activity", func() {
			for _, t := range []metrics.EventType{
				metrics.EventRequestQueued,
				metrics.EventRequestQueued,
				metrics.EventReplayFailed,
				metrics.EventReplaySucceeded,
				metrics.EventDeadLettered,
			} {
				collector.Emit(metrics.MetricEvent{Type: t, Dependency: "rating"})
			}

			Eventually(func() metrics.DependencyMetrics {
				return collector.Snapshot("").Dependencies["rating"]
			}).Should(Equal(metrics.DependencyMetrics{
				Queued:         2,
				Replayed:       1,
				ReplayFailures: 1,
				DeadLettered:   1,
			}))
		})

		It("should count inbound requests by status", func() {
			collector.Emit(metrics.MetricEvent{Type: metrics.EventInboundCompleted, Method: "GET", Route: "/api/v1/rating", StatusCode: 200})
			collector.Emit(metrics.MetricEvent{Type: metrics.EventInboundCompleted, Method: "GET", Route: "/api/v1/rating", StatusCode: 503})

			Eventually(func() int64 {
				return collector.Snapshot("").InboundRequests
			}).Should(Equal(int64(2)))
			Expect(collector.Snapshot("").InboundStatuses).To(HaveKeyWithValue(503, int64(1)))
		})

		It("should ignore unknown events", func() {
			collector.Emit(metrics.MetricEvent{Type: "unknown", Dependency: "library"})
			Consistently(func() int {
				return len(collector.Snapshot("").Dependencies)
			}, 50*time.Millisecond).Should(BeZero())
		})
	})

	Describe("Emit", func() {
		It("should drop events instead of blocking when the buffer is full", func() {
			small := metrics.NewCollector(1, slog.New(slog.NewTextHandler(io.Discard, nil)))
			done := make(chan struct{})
			go func() {
				for i := 0; i < 10; i++ {
					small.Emit(metrics.MetricEvent{Type: metrics.EventRequestQueued, Dependency: "rating"})
				}
				close(done)
			}()
			Eventually(done).Should(BeClosed())
		})
	})

	Describe("shutdown", func() {
		It("should drain buffered events on cancel", func() {
			for i := 0; i < 5; i++ {
				collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestQueued, Dependency: "reservation"})
			}
			cancel()
			collector.Start(ctx)

			Eventually(func() int64 {
				return collector.Snapshot("").Dependencies["reservation"].Queued
			}).Should(Equal(int64(5)))
		})
	})

	Describe("handlers", func() {
		BeforeEach(func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventCallCompleted,
				Dependency: "library",
				Backend:    "http://library:8060",
				Duration:   10 * time.Millisecond,
				StatusCode: http.StatusOK,
			})
			Eventually(func() int64 {
				return collector.Snapshot("").Dependencies["library"].Calls
			}).Should(Equal(int64(1)))
		})

		It("should serve the JSON snapshot", func() {
			rec := httptest.NewRecorder()
			collector.Handler("least-conn")(rec, httptest.NewRequest(http.MethodGet, "/manage/stats", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.Strategy).To(Equal("least-conn"))
			Expect(snap.Dependencies["library"].Calls).To(Equal(int64(1)))
		})

		It("should serve Prometheus metrics", func() {
			rec := httptest.NewRecorder()
			collector.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`library_gateway_dependency_calls_total{dependency="library",status="200"} 1`))
		})
	})

	It("should accept events through the Discard emitter", func() {
		Expect(func() { metrics.Discard.Emit(metrics.MetricEvent{}) }).NotTo(Panic())
	})
})
