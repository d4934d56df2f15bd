package client

import (
	"testing"

	"github.com/BMDan/RocketSpeed/internal/wire"
)

func TestSubscribeStartsPending(t *testing.T) {
	m := NewSubscriptionsMap()
	sub := m.Subscribe(SubscriptionParams{Namespace: "ns", Topic: "t", FromSeqno: 5})

	pending := m.DrainPending()
	if len(pending) != 1 || pending[0].ID != sub.ID {
		t.Fatalf("expected sub to be pending, got %v", pending)
	}
}

func TestMarkSyncedMovesOutOfPending(t *testing.T) {
	m := NewSubscriptionsMap()
	sub := m.Subscribe(SubscriptionParams{Namespace: "ns", Topic: "t"})
	m.DrainPending()
	m.MarkSynced(sub)

	found, ok := m.Find(sub.ID)
	if !ok || found.ID != sub.ID {
		t.Fatal("expected synced subscription to be findable")
	}
}

func TestUnsubscribeQueuesRequested(t *testing.T) {
	m := NewSubscriptionsMap()
	sub := m.Subscribe(SubscriptionParams{Namespace: "ns", Topic: "t"})
	m.DrainPending()
	m.MarkSynced(sub)

	m.Unsubscribe(sub.ID)
	if _, ok := m.Find(sub.ID); ok {
		t.Fatal("expected subscription to be removed")
	}
	unsubs := m.DrainUnsubscribes()
	if unsubs[sub.ID] != wire.UnsubscribeRequested {
		t.Fatalf("expected queued Unsubscribe(Requested), got %v", unsubs)
	}
}

func TestRewindMovesToFreshIDAndSeqno(t *testing.T) {
	m := NewSubscriptionsMap()
	sub := m.Subscribe(SubscriptionParams{Namespace: "ns", Topic: "t", FromSeqno: 1})
	m.DrainPending()
	m.MarkSynced(sub)

	rewound := m.Rewind(sub, 999, 42)
	if _, ok := m.Find(sub.ID); ok {
		t.Fatal("old id should no longer resolve after rewind")
	}
	pending := m.DrainPending()
	if len(pending) != 1 || pending[0].ID != 999 || pending[0].ExpectedSeqno != 42 {
		t.Fatalf("unexpected rewound subscription: %+v", pending)
	}
	_ = rewound
}

func TestReconnectToPromotesSyncedBackToPending(t *testing.T) {
	m := NewSubscriptionsMap()
	sub := m.Subscribe(SubscriptionParams{Namespace: "ns", Topic: "t"})
	m.DrainPending()
	m.MarkSynced(sub)

	m.ReconnectTo("new-host")
	if m.LastHost() != "new-host" {
		t.Fatalf("LastHost = %q, want new-host", m.LastHost())
	}
	pending := m.DrainPending()
	if len(pending) != 1 || pending[0].ID != sub.ID {
		t.Fatal("expected synced subscription to be replayed as pending")
	}
}

func TestDispatchUnknownIDQueuesUnsubscribe(t *testing.T) {
	m := NewSubscriptionsMap()
	ok := m.Dispatch(12345, 1, func(*Subscription) {})
	if ok {
		t.Fatal("expected Dispatch to report failure for unknown id")
	}
	unsubs := m.DrainUnsubscribes()
	if unsubs[12345] != wire.UnsubscribeRequested {
		t.Fatal("expected a polite Unsubscribe(Requested) queued for the unknown id")
	}
}

func TestDispatchSuppressesDuplicateDeliveries(t *testing.T) {
	m := NewSubscriptionsMap()
	sub := m.Subscribe(SubscriptionParams{Namespace: "ns", Topic: "t", FromSeqno: 0})
	m.DrainPending()
	m.MarkSynced(sub)

	calls := 0
	m.Dispatch(sub.ID, 5, func(*Subscription) { calls++ })
	m.Dispatch(sub.ID, 5, func(*Subscription) { calls++ }) // duplicate: current(5) < expected(6)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (duplicate should be suppressed)", calls)
	}
}

func TestAcknowledgeAdvancesResumeSeqno(t *testing.T) {
	m := NewSubscriptionsMap()
	sub := m.Subscribe(SubscriptionParams{Namespace: "ns", Topic: "t", FromSeqno: 0})
	if sub.ResumeSeqno() != 0 {
		t.Fatalf("ResumeSeqno before any ack = %d, want 0 (unacked)", sub.ResumeSeqno())
	}
	m.DrainPending()
	m.MarkSynced(sub)

	m.Acknowledge(sub.ID, 9)
	if sub.ResumeSeqno() != 10 {
		t.Fatalf("ResumeSeqno after ack(9) = %d, want 10", sub.ResumeSeqno())
	}
}

// TestResumeSeqnoUnackedIsZeroNotFromSeqno guards §6's save_subscriptions
// rule: an unacknowledged subscription persists 0, not its original
// FromSeqno, even when FromSeqno started well past 0.
func TestResumeSeqnoUnackedIsZeroNotFromSeqno(t *testing.T) {
	m := NewSubscriptionsMap()
	sub := m.Subscribe(SubscriptionParams{Namespace: "ns", Topic: "t", FromSeqno: 50})
	if sub.ResumeSeqno() != 0 {
		t.Fatalf("ResumeSeqno for an unacked subscription = %d, want 0 regardless of FromSeqno=50", sub.ResumeSeqno())
	}
}
