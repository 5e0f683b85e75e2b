package loadbalancer

import (
	"errors"
	"sync"

	"github.com/angeloszaimis/library-gateway/internal/apperror"
	"github.com/angeloszaimis/library-gateway/internal/backend"
	"github.com/angeloszaimis/library-gateway/internal/strategy"
)

var ErrNoHealthyBackend = errors.New("no healthy backends")

// LoadBalancer spreads calls for one dependency over its replicas.
type LoadBalancer struct {
	dependency string
	backends   []*backend.Backend
	strategy   strategy.Strategy
	mutex      sync.Mutex
}

func NewLoadBalancer(dependency string, backends []*backend.Backend, strategy strategy.Strategy) *LoadBalancer {
	return &LoadBalancer{
		dependency: dependency,
		backends:   backends,
		strategy:   strategy,
	}
}

func (lb *LoadBalancer) Dependency() string {
	return lb.dependency
}

func (lb *LoadBalancer) Backends() []*backend.Backend {
	return lb.backends
}

// GetAndReserveServer picks a healthy replica and counts the call against
// it. The caller releases the reservation with DecrementConn. With no
// healthy replica the error is classified as Unavailable so that the
// breaker treats it as an outage.
func (lb *LoadBalancer) GetAndReserveServer() (*backend.Backend, error) {
	lb.mutex.Lock()

	healthy := lb.filterHealthyBackends()
	if len(healthy) == 0 {
		lb.mutex.Unlock()
		return nil, apperror.Unavailable(lb.dependency, ErrNoHealthyBackend)
	}

	chosen := lb.strategy.SelectBackend(healthy)
	lb.mutex.Unlock()

	if chosen == nil {
		return nil, apperror.Unavailable(lb.dependency, ErrNoHealthyBackend)
	}

	chosen.IncrementConn()
	return chosen, nil
}

// HealthyCount is reported on the health endpoint.
func (lb *LoadBalancer) HealthyCount() int {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()
	return len(lb.filterHealthyBackends())
}

func (lb *LoadBalancer) filterHealthyBackends() []*backend.Backend {
	healthy := make([]*backend.Backend, 0, len(lb.backends))

	for _, b := range lb.backends {
		if b.IsHealthy() {
			healthy = append(healthy, b)
		}
	}

	return healthy
}
