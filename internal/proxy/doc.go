// Package proxy implements C7: the per-shard aggregator sitting between
// many downstream client connections and one upstream broker shard.
// PerShard owns a ShardingStrategy handle and the set of live PerStreams
// on that shard; PerStream decides, per subscription, between stream-level
// proxying (cold topics) and handing the subscription to the shared
// Multiplexer (hot topics, per the IsHotTopic predicate in
// internal/sharding). The Multiplexer collapses overlapping downstream
// subscriptions into one upstream subscription per topic and replays
// recent deliveries to late joiners from an UpdatesAccumulator ring
// buffer, the same bounded-recency idea internal/broker's byte-budgeted
// LRU applies to the delivery cache one layer down.
package proxy
