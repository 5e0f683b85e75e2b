// Package backend models one replica of a downstream service. It tracks
// health as reported by the health checker, in-flight calls reserved by
// the load balancer and an exponentially weighted response time.
package backend
