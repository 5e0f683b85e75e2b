// Package config loads the gateway configuration from config.yaml and the
// environment and validates it. It covers the listen address, logging,
// JWT verification, Redis, the retry queue, health checking, replica
// selection and the per-dependency replica lists and breaker settings.
package config
