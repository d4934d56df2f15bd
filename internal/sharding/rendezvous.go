package sharding

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// RendezvousRouter scores every live host against a shard with
// hash(host, shard) and keeps the top NumCopies scorers. Removing a host
// moves only the shards it used to win, but an added host wins every shard
// on which it outscores the current winners, whichever host held it; a
// host swap therefore also moves shards off hosts that stayed. A fleet
// resize redistributes winners roughly in proportion to the size change,
// since scores are independent uniform draws per host.
type RendezvousRouter struct {
	numShards int
	numCopies int

	mu      sync.RWMutex
	hosts   []HostID
	version uint64
}

// NewRendezvousRouter constructs a router over numShards logical shards,
// replicating each shard to its numCopies highest scorers.
func NewRendezvousRouter(numShards, numCopies int) *RendezvousRouter {
	if numShards <= 0 {
		numShards = 1
	}
	if numCopies <= 0 {
		numCopies = 1
	}
	return &RendezvousRouter{numShards: numShards, numCopies: numCopies}
}

// AddHost adds host to the fleet and bumps the version.
func (r *RendezvousRouter) AddHost(host HostID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.hosts {
		if h == host {
			return
		}
	}
	r.hosts = append(r.hosts, host)
	atomic.AddUint64(&r.version, 1)
}

// RemoveHost drops host from the fleet and bumps the version.
func (r *RendezvousRouter) RemoveHost(host HostID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.hosts {
		if h == host {
			r.hosts = append(r.hosts[:i], r.hosts[i+1:]...)
			atomic.AddUint64(&r.version, 1)
			return
		}
	}
}

// MarkHostDown is advisory; treated as an immediate removal.
func (r *RendezvousRouter) MarkHostDown(host HostID) {
	r.RemoveHost(host)
}

// GetShard hashes (namespace, topic) to one of numShards buckets.
func (r *RendezvousRouter) GetShard(namespace, topic string) uint32 {
	h := xxhash.Sum64String(namespace + "/" + topic)
	return uint32(h % uint64(r.numShards))
}

// GetVersion is a cheap atomic load.
func (r *RendezvousRouter) GetVersion() uint64 {
	return atomic.LoadUint64(&r.version)
}

// GetHost returns shard's top-scoring replica.
func (r *RendezvousRouter) GetHost(shard uint32) (HostID, error) {
	hosts := r.HostsForShard(shard)
	if len(hosts) == 0 {
		return "", errNoHostsForShard
	}
	return hosts[0], nil
}

type scoredHost struct {
	host  HostID
	score uint64
}

// HostsForShard scores every host and returns the top numCopies by score,
// highest first.
func (r *RendezvousRouter) HostsForShard(shard uint32) []HostID {
	r.mu.RLock()
	hosts := append([]HostID(nil), r.hosts...)
	r.mu.RUnlock()
	if len(hosts) == 0 {
		return nil
	}

	scored := make([]scoredHost, len(hosts))
	for i, h := range hosts {
		scored[i] = scoredHost{host: h, score: xxhash.Sum64String(fmt.Sprintf("%s|%d", h, shard))}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	n := r.numCopies
	if n > len(scored) {
		n = len(scored)
	}
	out := make([]HostID, n)
	for i := 0; i < n; i++ {
		out[i] = scored[i].host
	}
	return out
}
