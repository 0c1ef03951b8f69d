package loadbalance

import (
	"math/rand/v2"

	"clawdash/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional to its Weight.
// Weights of zero or less count as 1, so a gateway registered without one still gets traffic.
//
// Example: weights [10, 5, 10] (total 25) map onto [0,10) [10,15) [15,25).
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.Instance) (*registry.Instance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	total := 0
	for _, inst := range instances {
		total += effectiveWeight(inst)
	}

	r := rand.IntN(total)
	for i := range instances {
		r -= effectiveWeight(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func effectiveWeight(inst registry.Instance) int {
	if inst.Weight <= 0 {
		return 1
	}
	return inst.Weight
}
