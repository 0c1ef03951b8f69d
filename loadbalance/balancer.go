// Package loadbalance picks the gateway a call connects to when discovery returns
// more than one.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity gateways
//   - WeightedRandom:  gateways of different size, by Instance.Weight
//   - Affinity:        pins one dashboard to one gateway while the set is stable
package loadbalance

import (
	"errors"
	"fmt"

	"clawdash/registry"
)

// ErrNoInstances is returned by every strategy when discovery found nothing.
var ErrNoInstances = errors.New("loadbalance: no gateway instances available")

// Balancer selects one instance per call. Implementations are goroutine-safe.
type Balancer interface {
	Pick(instances []registry.Instance) (*registry.Instance, error)
	Name() string
}

// New returns the strategy registered under name ("round_robin", "weighted_random" or
// "affinity"). key is only used by affinity.
func New(name, key string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "affinity":
		return NewAffinityBalancer(key), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
	}
}
