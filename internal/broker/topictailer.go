package broker

import (
	"github.com/BMDan/RocketSpeed/internal/logstore"
	"github.com/BMDan/RocketSpeed/internal/wire"
)

// topicKey identifies a topic within one room's tailer.
type topicKey struct {
	namespace string
	topic     string
}

// subscriber is one stream's view of a topic: where it expects the next
// record to start, the seqno it last reported as Current (so the next
// delivery's Previous names an actual delivered point, not expected's
// one-past-the-end), and how to push a delivery onto its stream.
type subscriber struct {
	subID         uint64
	expected      uint64
	lastDelivered uint64
	deliver       func(wire.Message)
}

type topicState struct {
	logID uint64
	log   tailedLog
	subs  map[uint64]*subscriber
}

// TopicTailer owns one room's per-topic subscriber table and its shared
// delivery cache, advancing every subscriber's expected seqno as the
// LogTailer feeds records in. A namespace in bypassNamespaces skips the
// cache entirely, the way a system/control namespace shouldn't crowd out
// application data from a fixed byte budget.
type TopicTailer struct {
	cache            *byteLRU
	logTailer        *LogTailer
	bypassNamespaces map[string]bool

	topics map[topicKey]*topicState
}

// NewTopicTailer constructs a tailer bound to logTailer for record delivery
// and a cache capped at cacheCapacity bytes.
func NewTopicTailer(logTailer *LogTailer, cacheCapacity int64, bypassNamespaces ...string) *TopicTailer {
	bypass := make(map[string]bool, len(bypassNamespaces))
	for _, ns := range bypassNamespaces {
		bypass[ns] = true
	}
	return &TopicTailer{
		cache:            newByteLRU(cacheCapacity),
		logTailer:        logTailer,
		bypassNamespaces: bypass,
		topics:           make(map[topicKey]*topicState),
	}
}

// AddSubscriber registers subID on (ns, topic) starting from fromSeqno,
// opening a LogTailer reader slot the first time the topic is touched.
// Must run on the owning room's loop.
func (t *TopicTailer) AddSubscriber(logID uint64, l tailedLog, ns, topic string, subID, fromSeqno uint64, deliver func(wire.Message)) error {
	key := topicKey{namespace: ns, topic: topic}
	st, ok := t.topics[key]
	if !ok {
		st = &topicState{logID: logID, log: l, subs: make(map[uint64]*subscriber)}
		t.topics[key] = st

		if err := t.logTailer.Open(logID, l, logstore.TokenFromSeq(fromSeqno), ReaderCallbacks{
			OnRecord: func(rec LogRecord) { t.onRecord(key, rec) },
			OnGap:    func(gap GapRecord) { t.onGap(key, gap) },
		}); err != nil {
			delete(t.topics, key)
			return err
		}
	}
	st.subs[subID] = &subscriber{subID: subID, expected: fromSeqno, lastDelivered: fromSeqno, deliver: deliver}
	t.replayFromCache(key, st, fromSeqno, subID)
	return nil
}

// RemoveSubscriber drops subID from (ns, topic), closing the LogTailer slot
// once the last subscriber leaves.
func (t *TopicTailer) RemoveSubscriber(ns, topic string, subID uint64) {
	key := topicKey{namespace: ns, topic: topic}
	st, ok := t.topics[key]
	if !ok {
		return
	}
	delete(st.subs, subID)
	if len(st.subs) == 0 {
		t.logTailer.Close(st.logID)
		delete(t.topics, key)
	}
}

// GetTailSeqnoEstimate answers FindTailSeqno without touching storage:
// the estimate is the highest seqno any current subscriber of the topic
// expects next, minus one. The bool return reports whether the estimate
// is usable (some subscriber has a nonzero expected seqno).
func (t *TopicTailer) GetTailSeqnoEstimate(ns, topic string) (uint64, bool) {
	st, ok := t.topics[topicKey{namespace: ns, topic: topic}]
	if !ok {
		return 0, false
	}
	var max uint64
	found := false
	for _, sub := range st.subs {
		if sub.expected > 0 && (!found || sub.expected-1 > max) {
			max = sub.expected - 1
			found = true
		}
	}
	return max, found
}

func (t *TopicTailer) onRecord(key topicKey, rec LogRecord) {
	st, ok := t.topics[key]
	if !ok {
		return
	}
	if !t.bypassNamespaces[key.namespace] {
		t.cache.Put(key.topic, rec.Seqno, rec.Payload)
	}
	for _, sub := range st.subs {
		if rec.Seqno < sub.expected {
			continue // already delivered, or predates this subscriber's join
		}
		prev := sub.lastDelivered
		sub.expected = rec.Seqno + 1
		sub.lastDelivered = rec.Seqno
		sub.deliver(wire.DeliverData{SubID: sub.subID, Previous: prev, Current: rec.Seqno, Payload: rec.Payload})
	}
}

// onGap notifies every subscriber not yet caught up to gap.UpTo that
// [previous+1, UpTo-1] was never delivered as data, then advances them to
// UpTo so the record actually landing there is recognized, not skipped as
// a duplicate.
func (t *TopicTailer) onGap(key topicKey, gap GapRecord) {
	st, ok := t.topics[key]
	if !ok {
		return
	}
	for _, sub := range st.subs {
		if gap.UpTo == 0 || sub.expected >= gap.UpTo {
			continue
		}
		prev := sub.lastDelivered
		sub.deliver(wire.DeliverGap{SubID: sub.subID, Previous: prev, Current: gap.UpTo, Gap: gap.Kind})
		sub.expected = gap.UpTo
		sub.lastDelivered = gap.UpTo - 1
	}
}

// replayFromCache serves subID any cached records at or after fromSeqno
// immediately, so a subscriber rejoining within the cache window doesn't
// wait on the LogTailer's poll cadence for data it's actually had all
// along.
func (t *TopicTailer) replayFromCache(key topicKey, st *topicState, fromSeqno, subID uint64) {
	sub := st.subs[subID]
	for seq := fromSeqno; ; seq++ {
		payload, ok := t.cache.Get(key.topic, seq)
		if !ok {
			return
		}
		prev := sub.lastDelivered
		sub.expected = seq + 1
		sub.lastDelivered = seq
		sub.deliver(wire.DeliverData{SubID: sub.subID, Previous: prev, Current: seq, Payload: payload})
	}
}
