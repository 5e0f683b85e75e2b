package handler_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/gorilla/mux"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/library-gateway/internal/backend"
	"github.com/angeloszaimis/library-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/library-gateway/internal/handler"
	"github.com/angeloszaimis/library-gateway/internal/loadbalancer"
	"github.com/angeloszaimis/library-gateway/internal/strategy"
)

type healthBody struct {
	Status   string            `json:"status"`
	Breakers map[string]string `json:"breakers"`
	Queue    struct {
		Pending    int64  `json:"pending"`
		DeadLetter int64  `json:"deadLetter"`
		Error      string `json:"error"`
	} `json:"queue"`
	Dependencies map[string]struct {
		Healthy int `json:"healthy"`
		Total   int `json:"total"`
	} `json:"dependencies"`
}

var _ = Describe("ManageHandler", func() {
	var (
		logger   *slog.Logger
		registry *circuitbreaker.Registry
		queue    *fakeQueueStats
		pool     *loadbalancer.LoadBalancer
		router   *mux.Router
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		registry = circuitbreaker.NewRegistry(logger, nil)
		registry.Breaker("library", circuitbreaker.Settings{FailureThreshold: 3})
		queue = &fakeQueueStats{pending: 4, dead: 1}

		first, _ := url.Parse("http://library-1:8060")
		second, _ := url.Parse("http://library-2:8060")
		backends := []*backend.Backend{backend.New("library", first), backend.New("library", second)}
		backends[1].SetHealthy(false)
		strat, err := strategy.New(strategy.RoundRobin)
		Expect(err).NotTo(HaveOccurred())
		pool = loadbalancer.NewLoadBalancer("library", backends, strat)

		stats := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"strategy":"round-robin"}`))
		})

		router = mux.NewRouter()
		handler.NewManageHandler(logger, registry, queue, stats, pool).Register(router.PathPrefix("/manage").Subrouter())
	})

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	It("reports breakers, queue depth and replica health", func() {
		rec := get("/manage/health")

		Expect(rec.Code).To(Equal(http.StatusOK))
		var body healthBody
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Status).To(Equal("UP"))
		Expect(body.Breakers).To(HaveKeyWithValue("library", "CLOSED"))
		Expect(body.Queue.Pending).To(Equal(int64(4)))
		Expect(body.Queue.DeadLetter).To(Equal(int64(1)))
		Expect(body.Dependencies["library"].Healthy).To(Equal(1))
		Expect(body.Dependencies["library"].Total).To(Equal(2))
	})

	It("answers 503 when the queue is unreachable", func() {
		queue.err = errQueueDown

		rec := get("/manage/health")

		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		var body healthBody
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Status).To(Equal("DOWN"))
		Expect(body.Queue.Error).To(ContainSubstring("connection refused"))
	})

	It("serves the stats snapshot", func() {
		rec := get("/manage/stats")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("round-robin"))
	})
})
