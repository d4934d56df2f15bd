// Package broker implements the broker-side of the system: ControlTower,
// Room, and TopicTailer (C8), and the LogTailer adapter over logstore
// (C9).
//
// A ControlTower owns one msgloop.Pool, one Room per worker. Routing a
// topic to a room mirrors the way internal/sharding hashes a topic to a
// shard: the xxhash of "namespace/topic" is reduced mod the room count.
// The log id the ControlTower assigns to a topic plays no part in
// choosing its room. Each Room's single-goroutine ownership of its subscription table
// and cache follows the same "per-worker state needs no locks" discipline
// internal/msgloop documents for its pool.
package broker
