package client

import (
	"sync"
	"sync/atomic"

	"github.com/BMDan/RocketSpeed/internal/wire"
)

// SubscriptionParams describes a subscription request from the app.
type SubscriptionParams struct {
	TenantID  wire.TenantID
	Namespace string
	Topic     string
	FromSeqno uint64
	OnStatus  func(err error)
	OnData    func(wire.DeliverData)
}

// Subscription is one entry in a SubscriptionsMap. ExpectedSeqno advances
// as deliveries arrive and enforces the per-subscription ordering
// guarantee: the broker (and this map, defensively) reject deliveries
// with current < expected as duplicates.
type Subscription struct {
	ID            uint64
	Params        SubscriptionParams
	ExpectedSeqno uint64
	LastAckedSeqno uint64
	acked          bool
}

// SubscriptionsMap is the per-client-stream bookkeeping structure (C4):
// subscriptions created by the app but not yet flushed to the wire
// (pending), subscriptions already sent and expecting deliveries
// (synced), and ids queued for termination on the wire (pendingUnsub).
type SubscriptionsMap struct {
	mu sync.Mutex

	pending      map[uint64]*Subscription
	synced       map[uint64]*Subscription
	pendingUnsub map[uint64]wire.UnsubscribeReason

	lastHost string
	nextID   uint64
}

// NewSubscriptionsMap constructs an empty map.
func NewSubscriptionsMap() *SubscriptionsMap {
	return &SubscriptionsMap{
		pending:      make(map[uint64]*Subscription),
		synced:       make(map[uint64]*Subscription),
		pendingUnsub: make(map[uint64]wire.UnsubscribeReason),
	}
}

// Subscribe creates a fresh subscription in the pending container and
// returns its handle.
func (m *SubscriptionsMap) Subscribe(params SubscriptionParams) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := atomic.AddUint64(&m.nextID, 1)
	sub := &Subscription{ID: id, Params: params, ExpectedSeqno: params.FromSeqno}
	m.pending[id] = sub
	return sub
}

// Unsubscribe moves sub out of pending/synced and queues a polite
// Unsubscribe(Requested) for the writer to flush.
func (m *SubscriptionsMap) Unsubscribe(subID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, subID)
	delete(m.synced, subID)
	m.pendingUnsub[subID] = wire.UnsubscribeRequested
}

// Find looks a subscription up by id, checking both pending and synced.
func (m *SubscriptionsMap) Find(subID uint64) (*Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.synced[subID]; ok {
		return sub, true
	}
	if sub, ok := m.pending[subID]; ok {
		return sub, true
	}
	return nil, false
}

// Rewind is the route-change mechanism: sub is atomically moved back to
// pending under a fresh id and seqno, and the old id is dropped from
// every container so no stream state retains it.
func (m *SubscriptionsMap) Rewind(sub *Subscription, newID uint64, newSeqno uint64) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, sub.ID)
	delete(m.synced, sub.ID)
	delete(m.pendingUnsub, sub.ID)

	rewound := &Subscription{
		ID:             newID,
		Params:         sub.Params,
		ExpectedSeqno:  newSeqno,
		LastAckedSeqno: sub.LastAckedSeqno,
		acked:          sub.acked,
	}
	rewound.Params.FromSeqno = newSeqno
	m.pending[newID] = rewound
	return rewound
}

// ReconnectTo records the new target host and promotes every synced
// subscription back to pending so the writer replays them on the rebuilt
// sink.
func (m *SubscriptionsMap) ReconnectTo(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHost = host
	for id, sub := range m.synced {
		m.pending[id] = sub
		delete(m.synced, id)
	}
}

// LastHost returns the most recent host passed to ReconnectTo.
func (m *SubscriptionsMap) LastHost() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHost
}

// DrainPending removes and returns every pending subscription, for the
// writer to flush onto the wire and then mark synced.
func (m *SubscriptionsMap) DrainPending() []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Subscription, 0, len(m.pending))
	for id, sub := range m.pending {
		out = append(out, sub)
		delete(m.pending, id)
	}
	return out
}

// DrainUnsubscribes removes and returns every queued unsubscribe.
func (m *SubscriptionsMap) DrainUnsubscribes() map[uint64]wire.UnsubscribeReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pendingUnsub
	m.pendingUnsub = make(map[uint64]wire.UnsubscribeReason)
	return out
}

// MarkSynced moves sub from pending into synced once the writer has
// flushed it onto the wire.
func (m *SubscriptionsMap) MarkSynced(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, sub.ID)
	m.synced[sub.ID] = sub
}

// QueuePendingUnsubscribe adds a bare id to the pendingUnsub container
// without requiring a live Subscription — used when replying to a
// delivery for an id this map has never heard of.
func (m *SubscriptionsMap) QueuePendingUnsubscribe(subID uint64, reason wire.UnsubscribeReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingUnsub[subID] = reason
}

// Dispatch looks msg's target subscription up by id and applies the
// per-subscription ordering guarantee before handing it to the app
// callback. An unknown id causes Dispatch to queue a polite
// Unsubscribe(Requested) and return false so the caller knows not to ack
// anything.
func (m *SubscriptionsMap) Dispatch(subID uint64, current uint64, deliver func(*Subscription)) bool {
	m.mu.Lock()
	sub, ok := m.synced[subID]
	m.mu.Unlock()
	if !ok {
		m.QueuePendingUnsubscribe(subID, wire.UnsubscribeRequested)
		return false
	}

	m.mu.Lock()
	if current < sub.ExpectedSeqno {
		m.mu.Unlock()
		return true // duplicate spanning a reconnect gap; suppressed, not an error.
	}
	sub.ExpectedSeqno = current + 1
	m.mu.Unlock()

	deliver(sub)
	return true
}

// Acknowledge records that the app has consumed up through seqno,
// updating the position a later save_subscriptions will persist.
func (m *SubscriptionsMap) Acknowledge(subID uint64, seqno uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.synced[subID]; ok {
		sub.LastAckedSeqno = seqno
		sub.acked = true
		return
	}
	if sub, ok := m.pending[subID]; ok {
		sub.LastAckedSeqno = seqno
		sub.acked = true
	}
}

// ResumeSeqno returns the seqno a snapshot should persist for sub, per
// save_subscriptions in §6: GetLastAcknowledged()+1, or 0 if nothing has
// been acknowledged yet. The original client.cc seeds last_acked_seqno_
// from start_seqno-1 at construction so it never needs an unacked case;
// this map tracks "acked" explicitly instead, but the persisted result is
// the same for any subscription that has received at least one ack.
func (sub *Subscription) ResumeSeqno() uint64 {
	if !sub.acked {
		return 0
	}
	return sub.LastAckedSeqno + 1
}

// All returns every subscription currently tracked, pending or synced,
// for save_subscriptions to snapshot.
func (m *SubscriptionsMap) All() []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Subscription, 0, len(m.pending)+len(m.synced))
	for _, sub := range m.pending {
		out = append(out, sub)
	}
	for _, sub := range m.synced {
		out = append(out, sub)
	}
	return out
}
