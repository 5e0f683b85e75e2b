// Package client talks to the library, reservation and rating services.
//
// Every call goes through the dependency's circuit breaker and then the
// Executor, which picks a healthy replica, applies the call timeout and
// classifies the response into apperror kinds. Calls that must eventually
// happen are handed to the retry queue when the dependency is down, and
// each client replays them for the queue worker.
package client
