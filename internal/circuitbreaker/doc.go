// Package circuitbreaker guards calls to one downstream dependency.
//
// Each dependency gets its own breaker with three states:
//
//   - CLOSED: calls pass through; consecutive failures are counted
//   - OPEN: calls are short-circuited to the fallback until the cool-down ends
//   - HALF-OPEN: a single trial call decides between CLOSED and OPEN
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(logger, nil)
//	cb := registry.Breaker("library", circuitbreaker.Settings{
//	    FailureThreshold: 5,
//	    OpenTimeout:      10 * time.Second,
//	})
//	err := cb.Execute(ctx, callLibrary, func(ctx context.Context, cause error) error {
//	    return queue.Enqueue(ctx, req)
//	})
//
// Breakers are created once at assembly time and handed to the clients that
// need them. Nothing is looked up globally.
package circuitbreaker
