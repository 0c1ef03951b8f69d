package loadbalance

import (
	"sync/atomic"

	"clawdash/registry"
)

// RoundRobinBalancer cycles through the instances in order using an atomic counter.
type RoundRobinBalancer struct {
	index uint64
}

func (b *RoundRobinBalancer) Pick(instances []registry.Instance) (*registry.Instance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	idx := atomic.AddUint64(&b.index, 1) - 1
	return &instances[idx%uint64(len(instances))], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
