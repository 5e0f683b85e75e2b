// Package logger builds the gateway's slog.Logger: JSON in prod, text
// everywhere else, tagged with the deployment environment.
package logger
