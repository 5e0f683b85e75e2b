package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/library-gateway/internal/backend"
	"github.com/angeloszaimis/library-gateway/internal/metrics"
)

const (
	HealthPath   = "/manage/health"
	probeTimeout = 5 * time.Second
)

// HealthCheck probes b every interval until ctx is cancelled. Transitions
// are logged and reported to events.
func HealthCheck(
	ctx context.Context,
	b *backend.Backend,
	interval time.Duration,
	logger *slog.Logger,
	events metrics.Emitter,
) {
	client := &http.Client{
		Timeout: probeTimeout,
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attrs := []any{
		slog.String("dependency", b.Dependency()),
		slog.String("server", b.URL().String()),
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Health check stopped", attrs...)
			return

		case <-ticker.C:
			healthy := Probe(ctx, client, b)
			if ctx.Err() != nil {
				return
			}
			if !b.SetHealthy(healthy) {
				continue
			}

			if healthy {
				logger.Info("Server is back up", attrs...)
			} else {
				logger.Warn("Server is down", attrs...)
			}
			events.Emit(metrics.MetricEvent{
				Type:       metrics.EventHealthChanged,
				Dependency: b.Dependency(),
				Backend:    b.URL().String(),
				Healthy:    healthy,
			})
		}
	}
}

// Probe reports whether b answers its health endpoint with 200.
func Probe(ctx context.Context, client *http.Client, b *backend.Backend) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.Endpoint(HealthPath, nil), nil)
	if err != nil {
		return false
	}

	res, err := client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return res.StatusCode == http.StatusOK
}
