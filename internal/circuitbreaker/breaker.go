package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/angeloszaimis/library-gateway/internal/apperror"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Short-circuiting calls
	StateHalfOpen              // Testing with one call
)

var (
	ErrOpen            = gobreaker.ErrOpenState
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// Func is a call guarded by the breaker.
type Func func(ctx context.Context) error

// Fallback runs instead of a failed or short-circuited call. cause is the
// failure of the primary, or an Unavailable error wrapping ErrOpen or
// ErrTooManyRequests when the primary was never attempted.
type Fallback func(ctx context.Context, cause error) error

type Settings struct {
	FailureThreshold int
	OpenTimeout      time.Duration
	// IsFailure decides whether an error counts against the dependency.
	// Errors it rejects are returned as-is and never reach the fallback.
	// Nil counts every error except caller cancellation.
	IsFailure     func(err error) bool
	OnStateChange func(name string, from, to State)
}

type CircuitBreaker struct {
	name      string
	isFailure func(err error) bool
	breaker   *gobreaker.TwoStepCircuitBreaker
}

func NewCircuitBreaker(name string, settings Settings) *CircuitBreaker {
	threshold := uint32(1)
	if settings.FailureThreshold > 1 {
		threshold = uint32(settings.FailureThreshold)
	}

	cb := &CircuitBreaker{
		name:      name,
		isFailure: settings.IsFailure,
	}

	cb.breaker = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if settings.OnStateChange != nil {
				settings.OnStateChange(name, fromGobreaker(from), fromGobreaker(to))
			}
		},
	})

	return cb
}

// Execute runs primary under the breaker. The fallback, when given, runs
// for failures that count against the dependency and for short-circuited
// calls; its result replaces the primary's.
//
// A call cancelled by the caller is neither a success nor a failure: the
// failure streak is kept, and a cancelled half-open trial reopens the
// breaker instead of closing it.
func (cb *CircuitBreaker) Execute(ctx context.Context, primary Func, fallback Fallback) error {
	done, err := cb.breaker.Allow()
	if err != nil {
		err = apperror.Unavailable(cb.name, err)
		if fallback == nil {
			return err
		}
		return fallback(ctx, err)
	}

	trial := cb.breaker.State() == gobreaker.StateHalfOpen
	err = cb.run(ctx, primary, done, trial)
	if err == nil || !cb.countsAsFailure(err) {
		return err
	}

	if fallback == nil {
		return err
	}

	return fallback(ctx, err)
}

func (cb *CircuitBreaker) run(ctx context.Context, primary Func, done func(success bool), trial bool) error {
	settled := false
	defer func() {
		// primary panicked
		if !settled {
			done(false)
		}
	}()

	err := primary(ctx)
	settled = true

	if errors.Is(err, context.Canceled) {
		// Half-open admits one request until it reports back.
		if trial {
			done(false)
		}
		return err
	}

	done(!cb.countsAsFailure(err))
	return err
}

func (cb *CircuitBreaker) countsAsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if cb.isFailure == nil {
		return true
	}

	return cb.isFailure(err)
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	return fromGobreaker(cb.breaker.State())
}

// ConsecutiveFailures is only meaningful while the breaker is closed.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	return int(cb.breaker.Counts().ConsecutiveFailures)
}

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
