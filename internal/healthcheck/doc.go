// Package healthcheck probes each dependency replica's /manage/health
// endpoint on a fixed interval and flips the replica's health flag, which
// the load balancer consults when picking a replica.
package healthcheck
