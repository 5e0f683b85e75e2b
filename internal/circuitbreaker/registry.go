package circuitbreaker

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry owns the breakers of one process. It is built once at assembly
// time; clients receive their breaker from it and keep the pointer.
type Registry struct {
	mutex    sync.RWMutex
	breakers map[string]*CircuitBreaker
	logger   *slog.Logger
	onChange func(name string, from, to State)
}

func NewRegistry(logger *slog.Logger, onChange func(name string, from, to State)) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
		onChange: onChange,
	}
}

// Breaker returns the breaker for name, creating it with settings on first
// use. Settings passed on later calls are ignored.
func (r *Registry) Breaker(name string, settings Settings) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	userHook := settings.OnStateChange
	settings.OnStateChange = func(name string, from, to State) {
		r.logTransition(name, from, to)
		if r.onChange != nil {
			r.onChange(name, from, to)
		}
		if userHook != nil {
			userHook(name, from, to)
		}
	}

	cb = NewCircuitBreaker(name, settings)
	r.breakers[name] = cb
	r.logger.Info("Created circuit breaker",
		slog.String("dependency", name),
		slog.Int("failure_threshold", settings.FailureThreshold),
		slog.Duration("open_timeout", settings.OpenTimeout))

	return cb
}

func (r *Registry) Stats() map[string]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]State, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.State()
	}
	return stats
}

func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) logTransition(name string, from, to State) {
	attrs := []any{
		slog.String("dependency", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	}

	if to == StateOpen {
		r.logger.Warn("Circuit breaker opened", attrs...)
		return
	}
	r.logger.Info("Circuit breaker state changed", attrs...)
}
