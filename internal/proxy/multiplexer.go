package proxy

import (
	"sync"

	"github.com/BMDan/RocketSpeed/internal/wire"
)

// topicKey identifies a topic within one Multiplexer.
type topicKey struct {
	namespace string
	topic     string
}

// DownstreamID identifies one downstream subscriber: the PerStream it
// arrived on plus that client's own subscription id.
type DownstreamID struct {
	Session *PerStream
	SubID   uint64
}

type downstreamSub struct {
	id            DownstreamID
	expected      uint64
	lastDelivered uint64
	deliver       func(wire.Message)
}

// UpstreamSubscription aggregates every downstream subscriber sharing one
// (namespace, topic) behind a single upstream subscription.
type UpstreamSubscription struct {
	key           topicKey
	upstreamSubID uint64
	downstreams   map[DownstreamID]*downstreamSub
	accumulator   *UpdatesAccumulator
}

// UpstreamSubscriber is how the Multiplexer reaches the shared upstream
// SubscriptionsMap — a thin seam so tests can fake the upstream broker
// connection without a real Socket.
type UpstreamSubscriber interface {
	Subscribe(ns, topic string, fromSeqno uint64, deliver func(wire.Message)) (upstreamSubID uint64, err error)
	Unsubscribe(upstreamSubID uint64)
}

// Multiplexer keeps topic_index: (ns, topic) -> UpstreamSubscription,
// collapsing N downstream subscriptions on a hot topic into one upstream
// subscription.
type Multiplexer struct {
	upstream    UpstreamSubscriber
	accCapacity int

	mu    sync.Mutex
	index map[topicKey]*UpstreamSubscription
}

// NewMultiplexer constructs a Multiplexer that opens upstream subscriptions
// through upstream, caching accCapacity recent deliveries per topic.
func NewMultiplexer(upstream UpstreamSubscriber, accCapacity int) *Multiplexer {
	return &Multiplexer{upstream: upstream, accCapacity: accCapacity, index: make(map[topicKey]*UpstreamSubscription)}
}

// DownstreamCount reports how many downstream subscribers a topic
// currently has multiplexed, for the IsHotTopic predicate's
// downstream_count input.
func (m *Multiplexer) DownstreamCount(ns, topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ups, ok := m.index[topicKey{namespace: ns, topic: topic}]
	if !ok {
		return 0
	}
	return len(ups.downstreams)
}

// Subscribe adds (session, subID) to ns/topic's aggregated subscription,
// opening a fresh upstream subscription if this is the first downstream on
// that topic. Late joiners are served from the accumulator immediately;
// a request predating the accumulator's retention surfaces Gap(kRetention)
// first.
func (m *Multiplexer) Subscribe(ns, topic string, id DownstreamID, fromSeqno uint64, deliver func(wire.Message)) error {
	key := topicKey{namespace: ns, topic: topic}

	m.mu.Lock()
	ups, ok := m.index[key]
	if !ok {
		ups = &UpstreamSubscription{key: key, downstreams: make(map[DownstreamID]*downstreamSub), accumulator: NewUpdatesAccumulator(m.accCapacity)}
		m.index[key] = ups
	}
	sub := &downstreamSub{id: id, expected: fromSeqno, lastDelivered: fromSeqno, deliver: deliver}
	ups.downstreams[id] = sub
	m.mu.Unlock()

	if !ok {
		upstreamSubID, err := m.upstream.Subscribe(ns, topic, fromSeqno, func(msg wire.Message) { m.onUpstreamDeliver(key, msg) })
		if err != nil {
			m.mu.Lock()
			delete(ups.downstreams, id)
			delete(m.index, key)
			m.mu.Unlock()
			return err
		}
		m.mu.Lock()
		ups.upstreamSubID = upstreamSubID
		m.mu.Unlock()
		return nil
	}

	m.replay(ups, sub, fromSeqno)
	return nil
}

func (m *Multiplexer) replay(ups *UpstreamSubscription, sub *downstreamSub, fromSeqno uint64) {
	entries, gapBefore := ups.accumulator.Since(fromSeqno)
	if gapBefore {
		sub.deliver(wire.DeliverGap{SubID: sub.id.SubID, Previous: fromSeqno, Current: fromSeqno, Gap: wire.GapRetention})
	}
	for _, e := range entries {
		if e.Seqno < sub.expected {
			continue
		}
		prev := sub.lastDelivered
		sub.expected = e.Seqno + 1
		sub.lastDelivered = e.Seqno
		sub.deliver(wire.DeliverData{SubID: sub.id.SubID, Previous: prev, Current: e.Seqno, Payload: e.Payload})
	}
}

// onUpstreamDeliver feeds the accumulator and fans the record out to every
// downstream whose expected seqno has caught up to it.
func (m *Multiplexer) onUpstreamDeliver(key topicKey, msg wire.Message) {
	m.mu.Lock()
	ups, ok := m.index[key]
	m.mu.Unlock()
	if !ok {
		return
	}

	switch mm := msg.(type) {
	case wire.DeliverData:
		ups.accumulator.Push(mm.Current, mm.Payload)
		m.mu.Lock()
		subs := make([]*downstreamSub, 0, len(ups.downstreams))
		for _, s := range ups.downstreams {
			subs = append(subs, s)
		}
		m.mu.Unlock()
		for _, sub := range subs {
			if mm.Current < sub.expected {
				continue
			}
			prev := sub.lastDelivered
			sub.expected = mm.Current + 1
			sub.lastDelivered = mm.Current
			sub.deliver(wire.DeliverData{SubID: sub.id.SubID, Previous: prev, Current: mm.Current, Payload: mm.Payload})
		}
	case wire.DeliverGap:
		m.mu.Lock()
		subs := make([]*downstreamSub, 0, len(ups.downstreams))
		for _, s := range ups.downstreams {
			subs = append(subs, s)
		}
		m.mu.Unlock()
		for _, sub := range subs {
			sub.deliver(wire.DeliverGap{SubID: sub.id.SubID, Previous: sub.expected, Current: sub.expected, Gap: mm.Gap})
		}
	}
}

// Unsubscribe removes one downstream from its aggregated subscription,
// tearing the upstream subscription down once the last downstream leaves.
func (m *Multiplexer) Unsubscribe(ns, topic string, id DownstreamID) {
	key := topicKey{namespace: ns, topic: topic}
	m.mu.Lock()
	ups, ok := m.index[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(ups.downstreams, id)
	empty := len(ups.downstreams) == 0
	if empty {
		delete(m.index, key)
	}
	m.mu.Unlock()

	if empty {
		m.upstream.Unsubscribe(ups.upstreamSubID)
	}
}

// Reset tears every aggregated subscription down, synthesizing a Goodbye
// to each downstream — used when PerShard's route to the upstream host
// changes.
func (m *Multiplexer) Reset() {
	m.mu.Lock()
	all := make([]*UpstreamSubscription, 0, len(m.index))
	for _, ups := range m.index {
		all = append(all, ups)
	}
	m.index = make(map[topicKey]*UpstreamSubscription)
	m.mu.Unlock()

	for _, ups := range all {
		m.upstream.Unsubscribe(ups.upstreamSubID)
		for _, sub := range ups.downstreams {
			sub.deliver(wire.Goodbye{Reason: wire.GoodbyeSocketError})
		}
	}
}
