package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"clawdash/registry"
)

// AffinityBalancer maps a fixed key (typically the client id) onto a hash ring of the
// current instances, so a dashboard keeps talking to the same gateway until that gateway
// leaves the set. Each instance gets replicas virtual nodes to even out the ring.
type AffinityBalancer struct {
	key      string
	replicas int

	mu        sync.Mutex
	signature string
	ring      []uint32
	nodes     map[uint32]int // hash -> index into the instance list
}

func NewAffinityBalancer(key string) *AffinityBalancer {
	return &AffinityBalancer{key: key, replicas: 100}
}

// Pick rebuilds the ring only when the set of addresses changes.
func (b *AffinityBalancer) Pick(instances []registry.Instance) (*registry.Instance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sig := signature(instances); sig != b.signature {
		b.build(instances)
		b.signature = sig
	}

	hash := crc32.ChecksumIEEE([]byte(b.key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return &instances[b.nodes[b.ring[idx]]], nil
}

func (b *AffinityBalancer) build(instances []registry.Instance) {
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]int, len(instances)*b.replicas)
	for i, inst := range instances {
		for r := 0; r < b.replicas; r++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", inst.Addr, r)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = i
		}
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

func (b *AffinityBalancer) Name() string {
	return "Affinity"
}

// signature is order-sensitive since nodes stores list indexes.
func signature(instances []registry.Instance) string {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	return strings.Join(addrs, ",")
}
