package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/angeloszaimis/library-gateway/internal/backend"
	"github.com/angeloszaimis/library-gateway/internal/circuitbreaker"
)

const queueProbeTimeout = 2 * time.Second

// BreakerStats reports the state of every named breaker.
type BreakerStats interface {
	Stats() map[string]circuitbreaker.State
}

// QueueStats reports retry queue depth.
type QueueStats interface {
	Len(ctx context.Context) (int64, error)
	DeadLen(ctx context.Context) (int64, error)
}

// Pool is a dependency's replica set.
type Pool interface {
	Dependency() string
	HealthyCount() int
	Backends() []*backend.Backend
}

type healthResponse struct {
	Status       string                      `json:"status"`
	Breakers     map[string]string           `json:"breakers"`
	Queue        queueHealth                 `json:"queue"`
	Dependencies map[string]dependencyHealth `json:"dependencies"`
}

type queueHealth struct {
	Pending    int64  `json:"pending"`
	DeadLetter int64  `json:"deadLetter"`
	Error      string `json:"error,omitempty"`
}

type dependencyHealth struct {
	Healthy int `json:"healthy"`
	Total   int `json:"total"`
}

type ManageHandler struct {
	logger   *slog.Logger
	breakers BreakerStats
	queue    QueueStats
	pools    []Pool
	stats    http.Handler
}

func NewManageHandler(logger *slog.Logger, breakers BreakerStats, queue QueueStats, stats http.Handler, pools ...Pool) *ManageHandler {
	return &ManageHandler{
		logger:   logger,
		breakers: breakers,
		queue:    queue,
		pools:    pools,
		stats:    stats,
	}
}

func (h *ManageHandler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/stats", h.stats).Methods(http.MethodGet)
}

// Health answers 503 only when the retry queue cannot be reached. Open
// breakers and unhealthy replicas degrade the gateway without taking it
// out of rotation.
func (h *ManageHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "UP",
		Breakers:     make(map[string]string),
		Dependencies: make(map[string]dependencyHealth, len(h.pools)),
	}

	for name, state := range h.breakers.Stats() {
		resp.Breakers[name] = state.String()
	}

	for _, pool := range h.pools {
		resp.Dependencies[pool.Dependency()] = dependencyHealth{
			Healthy: pool.HealthyCount(),
			Total:   len(pool.Backends()),
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), queueProbeTimeout)
	defer cancel()

	status := http.StatusOK
	pending, err := h.queue.Len(ctx)
	if err == nil {
		resp.Queue.Pending = pending
		resp.Queue.DeadLetter, err = h.queue.DeadLen(ctx)
	}
	if err != nil {
		h.logger.Error("Retry queue unreachable", slog.Any("err", err))
		resp.Status = "DOWN"
		resp.Queue.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
