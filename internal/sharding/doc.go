// Package sharding implements the ShardingStrategy & Router contract (C5):
// a pure, cheap shard lookup with a monotonically non-decreasing version,
// and two interchangeable implementations — a consistent-hash ring and a
// rendezvous (highest-random-weight) hash — plus the hot-topic predicate
// (D1) the proxy layer uses to decide stream-level versus subscription-
// level multiplexing.
//
// Hashing throughout this package uses xxhash, the way the sevenDatabase
// example's shardmanager hashes keys to shards (xxhash.Sum64String mod
// shard count); it is extended here to ring points and rendezvous scores.
// The hot-topic predicate reuses the teacher's CEL filter construction
// (internal/services/streams/celfilter.go before it was folded into the
// proxy) against a namespace/topic variable set instead of a record one.
package sharding
