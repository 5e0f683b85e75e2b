package strategy

import (
	"fmt"

	"github.com/angeloszaimis/library-gateway/internal/backend"
)

const (
	RoundRobin    = "round-robin"
	Random        = "random"
	LeastConn     = "least-conn"
	LeastResponse = "least-response"
)

// Strategy picks one replica out of the healthy ones it is given.
type Strategy interface {
	SelectBackend(backends []*backend.Backend) *backend.Backend
}

// Names lists the strategies New understands.
var Names = []string{RoundRobin, Random, LeastConn, LeastResponse}

func New(name string) (Strategy, error) {
	switch name {
	case RoundRobin, "":
		return NewRoundRobinStrategy(), nil
	case Random:
		return NewRandomStrategy(), nil
	case LeastConn:
		return NewLeastConnStrategy(), nil
	case LeastResponse:
		return NewLeastResponseStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
