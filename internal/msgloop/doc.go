// Package msgloop implements the MsgLoop worker pool (C6): a fixed set of
// ioloop.EventLoop workers, deterministic topic-to-worker assignment, and
// a gather(map, reduce) fan-out/collect primitive.
//
// Worker assignment reuses the xxhash-mod-N idiom internal/sharding uses
// for shard assignment, the same hash function the sevenDatabase example's
// shardmanager uses to route keys to shards.
package msgloop
