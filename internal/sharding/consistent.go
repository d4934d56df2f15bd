package sharding

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// ConsistentRouter places each host at PointsPerHost points on a 64-bit
// ring and assigns a shard to the next NumCopies distinct hosts found
// walking the ring clockwise from hash(shard). Ring points are derived
// from host names. Removing a host moves only the shards that mapped to
// it, but an added host takes every shard whose walk now reaches one of
// its points first, whichever host held it; swapping one host for another
// therefore also moves shards off hosts that stayed. Growing the fleet by
// a fraction of its size moves roughly that same fraction of shards, since
// ring points are independently and uniformly distributed.
type ConsistentRouter struct {
	numShards     int
	numCopies     int
	pointsPerHost int

	mu      sync.RWMutex
	ring    []ringPoint
	hosts   map[HostID]struct{}
	version uint64
}

type ringPoint struct {
	hash uint64
	host HostID
}

// NewConsistentRouter constructs a router over numShards logical shards,
// replicating each shard to numCopies hosts, with pointsPerHost ring
// points per host (higher values smooth the distribution at the cost of
// a larger ring to scan).
func NewConsistentRouter(numShards, numCopies, pointsPerHost int) *ConsistentRouter {
	if numShards <= 0 {
		numShards = 1
	}
	if numCopies <= 0 {
		numCopies = 1
	}
	if pointsPerHost <= 0 {
		pointsPerHost = 64
	}
	return &ConsistentRouter{
		numShards:     numShards,
		numCopies:     numCopies,
		pointsPerHost: pointsPerHost,
		hosts:         make(map[HostID]struct{}),
	}
}

// AddHost inserts host's ring points and bumps the version.
func (r *ConsistentRouter) AddHost(host HostID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hosts[host]; ok {
		return
	}
	r.hosts[host] = struct{}{}
	for i := 0; i < r.pointsPerHost; i++ {
		h := xxhash.Sum64String(fmt.Sprintf("%s#%d", host, i))
		r.ring = append(r.ring, ringPoint{hash: h, host: host})
	}
	sort.Slice(r.ring, func(i, j int) bool { return r.ring[i].hash < r.ring[j].hash })
	atomic.AddUint64(&r.version, 1)
}

// RemoveHost strips host's ring points and bumps the version. Only the
// shards that were routed to host move as a result.
func (r *ConsistentRouter) RemoveHost(host HostID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hosts[host]; !ok {
		return
	}
	delete(r.hosts, host)
	kept := r.ring[:0]
	for _, p := range r.ring {
		if p.host != host {
			kept = append(kept, p)
		}
	}
	r.ring = kept
	atomic.AddUint64(&r.version, 1)
}

// MarkHostDown is advisory; treated as an immediate removal so subsequent
// GetHost calls stop returning the downed host.
func (r *ConsistentRouter) MarkHostDown(host HostID) {
	r.RemoveHost(host)
}

// GetShard hashes (namespace, topic) to one of numShards buckets. Pure and
// stable across calls at a fixed ring composition.
func (r *ConsistentRouter) GetShard(namespace, topic string) uint32 {
	h := xxhash.Sum64String(namespace + "/" + topic)
	return uint32(h % uint64(r.numShards))
}

// GetVersion is a cheap atomic load.
func (r *ConsistentRouter) GetVersion() uint64 {
	return atomic.LoadUint64(&r.version)
}

// GetHost returns shard's primary replica.
func (r *ConsistentRouter) GetHost(shard uint32) (HostID, error) {
	hosts := r.HostsForShard(shard)
	if len(hosts) == 0 {
		return "", errNoHostsForShard
	}
	return hosts[0], nil
}

// HostsForShard walks the ring clockwise from hash(shard), collecting up
// to numCopies distinct hosts.
func (r *ConsistentRouter) HostsForShard(shard uint32) []HostID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.ring) == 0 {
		return nil
	}
	target := xxhash.Sum64String(fmt.Sprintf("shard#%d", shard))
	start := sort.Search(len(r.ring), func(i int) bool { return r.ring[i].hash >= target })

	seen := make(map[HostID]struct{}, r.numCopies)
	out := make([]HostID, 0, r.numCopies)
	for i := 0; i < len(r.ring) && len(out) < r.numCopies; i++ {
		p := r.ring[(start+i)%len(r.ring)]
		if _, dup := seen[p.host]; dup {
			continue
		}
		seen[p.host] = struct{}{}
		out = append(out, p.host)
	}
	return out
}
