package strategy

import (
	"github.com/angeloszaimis/library-gateway/internal/backend"
)

type leastConnStrategy struct{}

// SelectBackend returns the first replica with the fewest reserved calls.
func (l *leastConnStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	var best *backend.Backend
	bestConns := 0

	for _, b := range backends {
		conns := b.ActiveConnections()
		if best == nil || conns < bestConns {
			best = b
			bestConns = conns
		}
	}

	return best
}

func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}
