package loadbalance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawdash/registry"
)

var testInstances = []registry.Instance{
	{Addr: "ws://gw-1:18789", Weight: 10, Version: "2026.1"},
	{Addr: "ws://gw-2:18789", Weight: 5, Version: "2026.1"},
	{Addr: "ws://gw-3:18789", Weight: 10, Version: "2026.1"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		results[i] = inst.Addr
	}
	assert.ElementsMatch(t, []string{"ws://gw-1:18789", "ws://gw-2:18789", "ws://gw-3:18789"}, results)

	inst, _ := b.Pick(testInstances)
	assert.Equal(t, results[0], inst.Addr, "should wrap around")
}

func TestEmptyInstances(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewAffinityBalancer("k")} {
		_, err := b.Pick(nil)
		assert.ErrorIs(t, err, ErrNoInstances, b.Name())
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		counts[inst.Addr]++
	}

	// 10:5:10, so gw-1 should see roughly twice what gw-2 sees.
	ratio := float64(counts["ws://gw-1:18789"]) / float64(counts["ws://gw-2:18789"])
	assert.InDelta(t, 2.0, ratio, 0.5)
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	instances := []registry.Instance{{Addr: "a"}, {Addr: "b", Weight: -3}}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		inst, err := b.Pick(instances)
		require.NoError(t, err)
		seen[inst.Addr] = true
	}
	assert.Len(t, seen, 2)
}

func TestAffinity(t *testing.T) {
	b := NewAffinityBalancer("dashboard-1")

	first, err := b.Pick(testInstances)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, _ := b.Pick(testInstances)
		assert.Equal(t, first.Addr, again.Addr)
	}

	// Different keys spread across the ring.
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, _ := NewAffinityBalancer(fmt.Sprintf("key-%d", i)).Pick(testInstances)
		seen[inst.Addr] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)
}

func TestAffinityRebuildsOnChange(t *testing.T) {
	b := NewAffinityBalancer("dashboard-1")
	first, _ := b.Pick(testInstances)

	var remaining []registry.Instance
	for _, inst := range testInstances {
		if inst.Addr != first.Addr {
			remaining = append(remaining, inst)
		}
	}
	next, err := b.Pick(remaining)
	require.NoError(t, err)
	assert.NotEqual(t, first.Addr, next.Addr)
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{
		"":                "RoundRobin",
		"round_robin":     "RoundRobin",
		"weighted_random": "WeightedRandom",
		"affinity":        "Affinity",
	} {
		b, err := New(name, "k")
		require.NoError(t, err)
		assert.Equal(t, want, b.Name())
	}
	_, err := New("fastest", "")
	assert.Error(t, err)
}
