package scaling

import (
	"sort"
	"sync"
	"sync/atomic"

	metro "github.com/dgryski/go-metro"
)

// Strategy selects how LoadBalancer.Select picks a backend (spec.md §4.9).
type Strategy int

const (
	RoundRobin Strategy = iota
	LeastConnections
	LeastTransactions
	LeastQueries
	LeastSize
	WeightedRoundRobin
	ConsistentHashing
)

// DefaultStrategy is used when a LoadBalancer is constructed without an
// explicit strategy (spec.md §6: `load_balancing_strategy` default
// `LeastConnections`).
const DefaultStrategy = LeastConnections

// backend is one registered database instance's best-effort load
// snapshot, refreshed asynchronously as metrics change (spec.md §4.9:
// "Load entries are updated asynchronously... the selector reads a
// best-effort snapshot").
type backend struct {
	id     DatabaseID
	weight int

	connections  atomic.Int64
	transactions atomic.Int64
	queries      atomic.Int64
	size         atomic.Int64
}

// LoadBalancer routes sessions to backends by Strategy (spec.md §4.9).
// Safe for concurrent use.
type LoadBalancer struct {
	strategy Strategy

	mu       sync.RWMutex
	order    []DatabaseID // registration order, for RoundRobin/WeightedRoundRobin
	backends map[DatabaseID]*backend

	rrCounter atomic.Uint64
}

// NewLoadBalancer creates an empty LoadBalancer using strategy.
func NewLoadBalancer(strategy Strategy) *LoadBalancer {
	return &LoadBalancer{
		strategy: strategy,
		backends: make(map[DatabaseID]*backend),
	}
}

// Register adds id as an eligible backend with the given weight (used
// only by WeightedRoundRobin; 1 if unspecified). Re-registering an
// existing id is a no-op.
func (lb *LoadBalancer) Register(id DatabaseID, weight ...int) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if _, exists := lb.backends[id]; exists {
		return
	}
	w := 1
	if len(weight) > 0 && weight[0] > 0 {
		w = weight[0]
	}
	lb.backends[id] = &backend{id: id, weight: w}
	lb.order = append(lb.order, id)
}

// Deregister removes id from the eligible backend set.
func (lb *LoadBalancer) Deregister(id DatabaseID) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	delete(lb.backends, id)
	for i, o := range lb.order {
		if o == id {
			lb.order = append(lb.order[:i], lb.order[i+1:]...)
			break
		}
	}
}

// Backends returns the currently registered backend count.
func (lb *LoadBalancer) Backends() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.order)
}

// UpdateLoad refreshes one backend's best-effort load counters; the
// AutoScalingController calls it on every tick with the MetricCollector
// snapshot it just read for id.
func (lb *LoadBalancer) UpdateLoad(id DatabaseID, m DatabaseMetrics) {
	lb.mu.RLock()
	b, ok := lb.backends[id]
	lb.mu.RUnlock()
	if !ok {
		return
	}
	b.connections.Store(m.ActiveConnections)
	b.transactions.Store(m.TransactionCount)
	b.queries.Store(m.QueryCount)
	b.size.Store(m.SizeBytes)
}

// Select picks the next backend according to the configured Strategy.
// hashKey is only consulted for ConsistentHashing; pass "" otherwise.
// Returns false if no backends are registered (spec.md §6: `Option<database_id>`).
func (lb *LoadBalancer) Select(hashKey string) (DatabaseID, bool) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	if len(lb.order) == 0 {
		return "", false
	}

	switch lb.strategy {
	case RoundRobin:
		n := lb.rrCounter.Add(1) - 1
		return lb.order[int(n)%len(lb.order)], true
	case WeightedRoundRobin:
		return lb.selectWeightedRoundRobin(), true
	case ConsistentHashing:
		return lb.selectConsistentHash(hashKey), true
	case LeastTransactions:
		return lb.selectLeast(func(b *backend) int64 { return b.transactions.Load() }), true
	case LeastQueries:
		return lb.selectLeast(func(b *backend) int64 { return b.queries.Load() }), true
	case LeastSize:
		return lb.selectLeast(func(b *backend) int64 { return b.size.Load() }), true
	case LeastConnections:
		fallthrough
	default:
		return lb.selectLeast(func(b *backend) int64 { return b.connections.Load() }), true
	}
}

// selectLeast returns the registered backend with the smallest metric,
// breaking ties by registration order for determinism.
func (lb *LoadBalancer) selectLeast(metric func(*backend) int64) DatabaseID {
	best := lb.order[0]
	bestVal := metric(lb.backends[best])
	for _, id := range lb.order[1:] {
		v := metric(lb.backends[id])
		if v < bestVal {
			best, bestVal = id, v
		}
	}
	return best
}

// selectWeightedRoundRobin distributes selections proportionally to each
// backend's registered weight: a shared counter taken modulo the total
// weight walks the backends in registration order, so within each cycle a
// backend receives as many consecutive selections as its weight.
func (lb *LoadBalancer) selectWeightedRoundRobin() DatabaseID {
	n := lb.rrCounter.Add(1) - 1
	totalWeight := 0
	for _, id := range lb.order {
		totalWeight += lb.backends[id].weight
	}
	if totalWeight == 0 {
		return lb.order[int(n)%len(lb.order)]
	}
	target := int(n) % totalWeight
	for _, id := range lb.order {
		w := lb.backends[id].weight
		if target < w {
			return id
		}
		target -= w
	}
	return lb.order[len(lb.order)-1]
}

// selectConsistentHash picks the backend whose id hashes closest to (at
// or after) hashKey's hash on a sorted hash ring, so the same key
// consistently maps to the same backend across calls as long as the
// backend set doesn't change (spec.md §4.9: ConsistentHashing "requires
// a key"). Uses go-metro, the same hasher the HashJoin operator uses for
// key hashing.
func (lb *LoadBalancer) selectConsistentHash(hashKey string) DatabaseID {
	type ringEntry struct {
		hash uint64
		id   DatabaseID
	}
	ring := make([]ringEntry, 0, len(lb.order))
	for _, id := range lb.order {
		ring = append(ring, ringEntry{hash: metro.Hash64Str(string(id), 0), id: id})
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i].hash < ring[j].hash })

	target := metro.Hash64Str(hashKey, 0)
	for _, e := range ring {
		if e.hash >= target {
			return e.id
		}
	}
	return ring[0].id
}
