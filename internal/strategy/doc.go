// Package strategy implements replica selection for dependency calls:
// round-robin, random, least-connections and least-response-time.
package strategy
