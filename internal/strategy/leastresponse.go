package strategy

import (
	"time"

	"github.com/angeloszaimis/library-gateway/internal/backend"
)

type leastResponseStrategy struct{}

// SelectBackend scores replicas by EWMA latency times (in-flight + 1).
// A replica that has never answered is tried first.
func (l *leastResponseStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	var chosen *backend.Backend
	var best time.Duration

	for _, b := range backends {
		ewma := b.EWMATime()
		if ewma == 0 {
			return b
		}

		score := ewma * (time.Duration(b.ActiveConnections()) + 1)
		if chosen == nil || score < best {
			chosen = b
			best = score
		}
	}

	return chosen
}

func NewLeastResponseStrategy() Strategy {
	return &leastResponseStrategy{}
}
