package sharding

import (
	"github.com/BMDan/RocketSpeed/internal/rserrors"
)

// HostID identifies a broker host in a router's fleet.
type HostID string

// Router is the ShardingStrategy & Router contract (C5): a pure, cheap
// shard lookup plus a monotonically non-decreasing version callers poll to
// detect host-binding changes.
type Router interface {
	// GetShard is pure and stable across calls at a fixed version.
	GetShard(namespace, topic string) uint32
	// GetVersion is a cheap atomic load, incremented whenever host
	// bindings change.
	GetVersion() uint64
	// GetHost may acquire a lock but performs no I/O.
	GetHost(shard uint32) (HostID, error)
	// HostsForShard returns every replica host owning shard, in
	// preference order; GetHost is HostsForShard(shard)[0].
	HostsForShard(shard uint32) []HostID
	// MarkHostDown is advisory; implementations may bump their version on
	// receipt so callers re-resolve on the next GetHost.
	MarkHostDown(host HostID)
}

var errNoHostsForShard = rserrors.New("sharding.GetHost", rserrors.NotFound, nil)
