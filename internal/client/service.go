package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/angeloszaimis/library-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/library-gateway/internal/metrics"
	"github.com/angeloszaimis/library-gateway/internal/model"
	"github.com/angeloszaimis/library-gateway/internal/retryqueue"
)

const HeaderUserName = "X-User-Name"

// Enqueuer accepts requests for later replay.
type Enqueuer interface {
	Enqueue(ctx context.Context, req retryqueue.QueuedRequest) error
}

// service is the part every dependency client shares: one breaker, one
// executor and the retry queue.
type service struct {
	executor *Executor
	breaker  *circuitbreaker.CircuitBreaker
	queue    Enqueuer
	logger   *slog.Logger
	events   metrics.Emitter
}

type Options struct {
	Executor *Executor
	Breaker  *circuitbreaker.CircuitBreaker
	Queue    Enqueuer
	Logger   *slog.Logger
	Events   metrics.Emitter
}

func newService(opts Options) *service {
	events := opts.Events
	if events == nil {
		events = metrics.Discard
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &service{
		executor: opts.Executor,
		breaker:  opts.Breaker,
		queue:    opts.Queue,
		logger:   logger.With(slog.String("dependency", opts.Executor.Dependency())),
		events:   events,
	}
}

// Name identifies the dependency in queued requests.
func (s *service) Name() string {
	return s.executor.Dependency()
}

func (s *service) call(ctx context.Context, req Request, out any) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.executor.Do(ctx, req, out)
	}, nil)
}

// callOrQueue hands req to the retry queue when the dependency is down or
// the caller went away before the call finished. The caller sees success
// once the request is durably queued.
func (s *service) callOrQueue(ctx context.Context, req Request) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.executor.Do(ctx, req, nil)
	}, func(ctx context.Context, cause error) error {
		return s.enqueue(ctx, req, cause)
	})
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return s.enqueue(ctx, req, err)
	}
	return err
}

func (s *service) enqueue(ctx context.Context, req Request, cause error) error {
	if s.queue == nil {
		return cause
	}

	queued := retryqueue.NewRequest(s.Name(), req.Method, req.Target(), req.Headers, req.Body)
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), queued); err != nil {
		s.logger.Error("Failed to queue request for retry",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Any("err", err))
		return errors.Join(cause, fmt.Errorf("queue for retry: %w", err))
	}

	s.logger.Warn("Request queued for retry",
		slog.String("id", queued.ID),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Any("cause", cause))
	s.events.Emit(metrics.MetricEvent{Type: metrics.EventRequestQueued, Dependency: s.Name()})
	return nil
}

// Replay sends a queued request through the breaker without the queue
// fallback, so a failure goes back to the worker.
func (s *service) Replay(ctx context.Context, queued retryqueue.QueuedRequest) error {
	path, query, err := ParseTarget(queued.Path)
	if err != nil {
		return fmt.Errorf("%s: parse queued path %q: %w", s.Name(), queued.Path, err)
	}

	return s.call(ctx, Request{
		Method:  queued.Method,
		Path:    path,
		Query:   query,
		Headers: queued.Headers,
		Body:    queued.Body,
	}, nil)
}

func identityHeaders(id model.Identity) map[string]string {
	headers := map[string]string{HeaderUserName: id.Username}
	if id.Token != "" {
		headers["Authorization"] = "Bearer " + id.Token
	}
	return headers
}
