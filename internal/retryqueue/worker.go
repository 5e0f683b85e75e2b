package retryqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/library-gateway/internal/apperror"
	"github.com/angeloszaimis/library-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/library-gateway/internal/metrics"
)

const DefaultMaxAttempts = 50

// Replayer re-sends queued requests for one dependency.
type Replayer interface {
	Name() string
	Replay(ctx context.Context, req QueuedRequest) error
}

// Queue is the part of Store the worker drives.
type Queue interface {
	Claim(ctx context.Context) (*QueuedRequest, error)
	Ack(ctx context.Context, req *QueuedRequest) error
	Requeue(ctx context.Context, req *QueuedRequest) error
	DeadLetter(ctx context.Context, req *QueuedRequest) error
	Recover(ctx context.Context) (int, error)
	Len(ctx context.Context) (int64, error)
}

type WorkerConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
}

// Worker drains the queue on a fixed interval.
type Worker struct {
	queue       Queue
	replayers   map[string]Replayer
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
	events      metrics.Emitter

	mutex  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(queue Queue, cfg WorkerConfig, logger *slog.Logger, events metrics.Emitter, replayers ...Replayer) *Worker {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	byName := make(map[string]Replayer, len(replayers))
	for _, r := range replayers {
		byName[r.Name()] = r
	}

	return &Worker{
		queue:       queue,
		replayers:   byName,
		interval:    cfg.PollInterval,
		maxAttempts: maxAttempts,
		logger:      logger,
		events:      events,
	}
}

// Start recovers orphaned requests and launches the drain loop. The loop
// runs until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.done != nil {
		return errors.New("retry worker already started")
	}

	recovered, err := w.queue.Recover(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		w.logger.Info("Recovered orphaned queued requests", slog.Int("count", recovered))
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx, w.done)

	return nil
}

// Stop cancels the loop and waits for it to exit.
func (w *Worker) Stop() {
	w.mutex.Lock()
	cancel, done := w.cancel, w.done
	w.mutex.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	w.logger.Info("Retry worker started", slog.Duration("interval", w.interval))
	defer w.logger.Info("Retry worker stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain makes one pass over the requests pending when it starts, so that
// items requeued during the pass wait for the next tick. It returns the
// number of successful replays.
func (w *Worker) Drain(ctx context.Context) int {
	pending, err := w.queue.Len(ctx)
	if err != nil {
		w.logger.Error("Failed to read retry queue length", slog.Any("err", err))
		return 0
	}

	replayed := 0
	for i := int64(0); i < pending; i++ {
		if ctx.Err() != nil {
			return replayed
		}

		req, err := w.queue.Claim(ctx)
		if err != nil {
			w.logger.Error("Failed to claim queued request", slog.Any("err", err))
			continue
		}
		if req == nil {
			return replayed
		}

		if w.process(ctx, req) {
			replayed++
		}
	}

	return replayed
}

func (w *Worker) process(ctx context.Context, req *QueuedRequest) bool {
	attrs := []any{
		slog.String("id", req.ID),
		slog.String("target", req.Target),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
	}

	replayer, ok := w.replayers[req.Target]
	if !ok {
		req.LastError = "no replayer registered for target"
		w.deadLetter(ctx, req, attrs)
		return false
	}

	err := replayer.Replay(ctx, *req)
	if err == nil {
		if ackErr := w.queue.Ack(ctx, req); ackErr != nil {
			w.logger.Error("Failed to ack replayed request", append(attrs, slog.Any("err", ackErr))...)
		}
		w.events.Emit(metrics.MetricEvent{Type: metrics.EventReplaySucceeded, Dependency: req.Target})
		w.logger.Info("Replayed queued request", attrs...)
		return true
	}

	if ctx.Err() != nil {
		// Left in processing; Recover returns it on the next start.
		return false
	}

	// A short-circuited replay never reached the dependency.
	if !shortCircuited(err) {
		req.Attempts++
	}
	req.LastError = err.Error()
	w.events.Emit(metrics.MetricEvent{Type: metrics.EventReplayFailed, Dependency: req.Target})

	if !apperror.IsRetryable(err) || req.Attempts >= w.maxAttempts {
		w.deadLetter(ctx, req, attrs)
		return false
	}

	w.logger.Warn("Replay failed, requeued",
		append(attrs, slog.Int("attempts", req.Attempts), slog.Any("err", err))...)
	if requeueErr := w.queue.Requeue(ctx, req); requeueErr != nil {
		w.logger.Error("Failed to requeue request", append(attrs, slog.Any("err", requeueErr))...)
	}
	return false
}

func (w *Worker) deadLetter(ctx context.Context, req *QueuedRequest, attrs []any) {
	w.logger.Error("Queued request dead-lettered",
		append(attrs, slog.Int("attempts", req.Attempts), slog.String("last_error", req.LastError))...)

	if err := w.queue.DeadLetter(ctx, req); err != nil {
		w.logger.Error("Failed to dead-letter request", append(attrs, slog.Any("err", err))...)
		return
	}
	w.events.Emit(metrics.MetricEvent{Type: metrics.EventDeadLettered, Dependency: req.Target})
}

func shortCircuited(err error) bool {
	return errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests)
}
