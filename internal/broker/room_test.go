package broker

import (
	"context"
	"testing"
	"time"

	"github.com/BMDan/RocketSpeed/internal/ioloop"
	"github.com/BMDan/RocketSpeed/internal/logstore"
	"github.com/BMDan/RocketSpeed/internal/wire"
)

func newTestRoom(t *testing.T) (*Room, *ioloop.EventLoop) {
	t.Helper()
	db := newTestDB(t)
	loop := ioloop.NewEventLoop(64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go loop.Run(ctx)

	opener := func(ns, topic string) (*logstore.Log, uint64, error) {
		l, err := logstore.OpenLog(db, ns, topic, 0)
		return l, 1, err
	}
	return NewRoom(loop, opener, 8, 1<<20), loop
}

func TestRoomSubscribeRejectsEmptyTopic(t *testing.T) {
	room, loop := newTestRoom(t)
	errCh := make(chan error, 1)
	_ = loop.Submit(func() {
		errCh <- room.Subscribe("ns", "", 1, 0, func(wire.Message) {})
	})
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected an error for an empty topic")
		}
	case <-time.After(time.Second):
		t.Fatal("subscribe never ran")
	}
}

func TestRoomPublishThenSubscribeDeliversNewRecords(t *testing.T) {
	room, loop := newTestRoom(t)
	delivered := make(chan wire.Message, 4)

	_ = loop.Submit(func() {
		_ = room.Subscribe("ns", "topic", 7, 0, func(m wire.Message) { delivered <- m })
	})
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	_ = loop.Submit(func() {
		_, err := room.Publish(context.Background(), "ns", "topic", [16]byte{1}, []byte("payload"))
		if err != nil {
			t.Errorf("publish: %v", err)
		}
		close(done)
	})
	<-done

	select {
	case m := <-delivered:
		dd, ok := m.(wire.DeliverData)
		if !ok || string(dd.Payload) != "payload" {
			t.Fatalf("unexpected delivery: %#v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never saw the published record")
	}
}

func TestRoomFindTailSeqnoFallsBackToStorage(t *testing.T) {
	room, loop := newTestRoom(t)

	done := make(chan struct{})
	_ = loop.Submit(func() {
		_, _ = room.Publish(context.Background(), "ns", "topic", [16]byte{}, []byte("a"))
	})
	time.Sleep(20 * time.Millisecond)

	var gotSeqno uint64
	var gotFound bool
	_ = loop.Submit(func() {
		room.FindTailSeqno(context.Background(), "ns", "topic", func(seqno uint64, found bool) {
			gotSeqno, gotFound = seqno, found
			close(done)
		})
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("FindTailSeqno never answered")
	}
	if !gotFound || gotSeqno != 1 {
		t.Fatalf("got (seqno=%d, found=%v), want (1, true)", gotSeqno, gotFound)
	}
}

func TestRoomCacheCapacityRoundTrip(t *testing.T) {
	room, _ := newTestRoom(t)
	room.SetCacheCapacity(128)
	if _, cap := room.CacheUsage(); cap != 128 {
		t.Fatalf("capacity = %d, want 128", cap)
	}
	room.ClearCache()
	if used, _ := room.CacheUsage(); used != 0 {
		t.Fatalf("used = %d, want 0 after ClearCache", used)
	}
}
