package strategy

import (
	"math/rand"

	"github.com/angeloszaimis/library-gateway/internal/backend"
)

type randomStrategy struct{}

func (r *randomStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	return backends[rand.Intn(len(backends))]
}

func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}
