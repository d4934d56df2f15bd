package proxy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BMDan/RocketSpeed/internal/wire"
)

type fakeUpstream struct {
	mu        sync.Mutex
	nextID    uint64
	delivers  map[uint64]func(wire.Message)
	unsubbed  []uint64
	subCalls  int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{delivers: make(map[uint64]func(wire.Message))}
}

func (f *fakeUpstream) Subscribe(ns, topic string, fromSeqno uint64, deliver func(wire.Message)) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCalls++
	f.nextID++
	id := f.nextID
	f.delivers[id] = deliver
	return id, nil
}

func (f *fakeUpstream) Unsubscribe(upstreamSubID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubbed = append(f.unsubbed, upstreamSubID)
	delete(f.delivers, upstreamSubID)
}

func (f *fakeUpstream) deliver(id uint64, msg wire.Message) {
	f.mu.Lock()
	cb := f.delivers[id]
	f.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

func TestMultiplexerCollapsesSecondSubscriberOntoFirst(t *testing.T) {
	up := newFakeUpstream()
	m := NewMultiplexer(up, 8)

	var a, b []wire.Message
	err := m.Subscribe("ns", "t", DownstreamID{SubID: 1}, 0, func(msg wire.Message) { a = append(a, msg) })
	require.NoError(t, err)
	err = m.Subscribe("ns", "t", DownstreamID{SubID: 2}, 0, func(msg wire.Message) { b = append(b, msg) })
	require.NoError(t, err)

	require.Equal(t, 1, up.subCalls, "second downstream on the same topic must not open a second upstream subscription")
	require.Equal(t, 2, m.DownstreamCount("ns", "t"))

	up.deliver(1, wire.DeliverData{SubID: 1, Current: 5, Payload: []byte("x")})
	require.Len(t, a, 1)
	require.Len(t, b, 1, "both downstreams should receive the fan-out")
}

func TestMultiplexerLateJoinerReplaysFromAccumulator(t *testing.T) {
	up := newFakeUpstream()
	m := NewMultiplexer(up, 8)

	err := m.Subscribe("ns", "t", DownstreamID{SubID: 1}, 0, func(wire.Message) {})
	require.NoError(t, err)
	up.deliver(1, wire.DeliverData{SubID: 1, Current: 1, Payload: []byte("a")})
	up.deliver(1, wire.DeliverData{SubID: 1, Current: 2, Payload: []byte("b")})

	var late []wire.Message
	err = m.Subscribe("ns", "t", DownstreamID{SubID: 2}, 1, func(msg wire.Message) { late = append(late, msg) })
	require.NoError(t, err)
	require.Len(t, late, 2, "late joiner should be replayed both cached records")
}

func TestMultiplexerDeliverDataPreviousTracksLastDeliveredNotExpected(t *testing.T) {
	up := newFakeUpstream()
	m := NewMultiplexer(up, 8)

	var delivered []wire.DeliverData
	err := m.Subscribe("ns", "t", DownstreamID{SubID: 1}, 0, func(msg wire.Message) {
		if dd, ok := msg.(wire.DeliverData); ok {
			delivered = append(delivered, dd)
		}
	})
	require.NoError(t, err)

	up.deliver(1, wire.DeliverData{SubID: 1, Current: 1, Payload: []byte("a")})
	up.deliver(1, wire.DeliverData{SubID: 1, Current: 2, Payload: []byte("b")})

	require.Len(t, delivered, 2)
	require.Equal(t, uint64(0), delivered[0].Previous)
	require.Equal(t, uint64(1), delivered[0].Current)
	// A buggy implementation that sets Previous from "expected" (current+1)
	// would report Previous=2 here instead of the actually-delivered seqno.
	require.Equal(t, uint64(1), delivered[1].Previous)
	require.Equal(t, uint64(2), delivered[1].Current)
}

func TestMultiplexerUnsubscribeLastDownstreamTearsDownUpstream(t *testing.T) {
	up := newFakeUpstream()
	m := NewMultiplexer(up, 8)

	require.NoError(t, m.Subscribe("ns", "t", DownstreamID{SubID: 1}, 0, func(wire.Message) {}))
	m.Unsubscribe("ns", "t", DownstreamID{SubID: 1})

	require.Len(t, up.unsubbed, 1)
	require.Equal(t, 0, m.DownstreamCount("ns", "t"))
}

func TestMultiplexerUnsubscribeOneOfManyKeepsUpstream(t *testing.T) {
	up := newFakeUpstream()
	m := NewMultiplexer(up, 8)

	require.NoError(t, m.Subscribe("ns", "t", DownstreamID{SubID: 1}, 0, func(wire.Message) {}))
	require.NoError(t, m.Subscribe("ns", "t", DownstreamID{SubID: 2}, 0, func(wire.Message) {}))
	m.Unsubscribe("ns", "t", DownstreamID{SubID: 1})

	require.Empty(t, up.unsubbed, "upstream subscription should survive while a downstream remains")
	require.Equal(t, 1, m.DownstreamCount("ns", "t"))
}
