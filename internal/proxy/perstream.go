package proxy

import (
	"sync"

	"github.com/BMDan/RocketSpeed/internal/transport"
	"github.com/BMDan/RocketSpeed/internal/wire"
)

// coldSub remembers, for one stream-level-proxied subscription, the
// upstream stream carrying it, so a later Unsubscribe or route change can
// find it again.
type coldSub struct {
	namespace string
	topic     string
	upstream  *transport.Stream
}

// PerStream is one downstream client connection on a shard: it decides,
// per Subscribe, between stream-level proxying (cold topics — open an
// upstream stream and forward frames through unchanged) and handing the
// subscription to the shard's shared Multiplexer (hot topics, per the
// IsHotTopic predicate). It is the unit PerShard fans change_route out to
// on a host change.
type PerStream struct {
	downstream *transport.Stream
	shard      *PerShard

	mu   sync.Mutex
	cold map[uint64]*coldSub // client SubID -> upstream stream, for cold topics
	hot  map[uint64]topicKey // client SubID -> topic, for hot topics
}

func newPerStream(downstream *transport.Stream, shard *PerShard) *PerStream {
	return &PerStream{
		downstream: downstream,
		shard:      shard,
		cold:       make(map[uint64]*coldSub),
		hot:        make(map[uint64]topicKey),
	}
}

// OnSubscribe routes msg to stream-level or subscription-level proxying.
func (ps *PerStream) OnSubscribe(msg wire.Subscribe) {
	upstreamSock, err := ps.shard.upstreamSocket()
	if err != nil {
		_ = ps.downstream.Send(wire.Unsubscribe{TenantID: msg.TenantID, SubID: msg.SubID, Reason: wire.UnsubscribeInvalid})
		return
	}

	count := ps.shard.multiplexer.DownstreamCount(msg.Namespace, msg.Topic)
	if ps.shard.hotPredicate.IsHot(msg.Namespace, msg.Topic, count) {
		ps.subscribeHot(msg)
		return
	}
	ps.subscribeCold(upstreamSock, msg)
}

func (ps *PerStream) subscribeHot(msg wire.Subscribe) {
	id := DownstreamID{Session: ps, SubID: msg.SubID}
	err := ps.shard.multiplexer.Subscribe(msg.Namespace, msg.Topic, id, msg.FromSeqno, func(m wire.Message) {
		_ = ps.downstream.Send(m)
	})
	if err != nil {
		_ = ps.downstream.Send(wire.Unsubscribe{TenantID: msg.TenantID, SubID: msg.SubID, Reason: wire.UnsubscribeInvalid})
		return
	}
	ps.mu.Lock()
	ps.hot[msg.SubID] = topicKey{namespace: msg.Namespace, topic: msg.Topic}
	ps.mu.Unlock()
}

func (ps *PerStream) subscribeCold(upstreamSock *transport.Socket, msg wire.Subscribe) {
	upstream := upstreamSock.OpenStream()
	upstream.OnMessage(func(m wire.Message) { _ = ps.downstream.Send(m) })
	if err := upstream.Send(wire.Subscribe{
		TenantID:     msg.TenantID,
		Namespace:    msg.Namespace,
		Topic:        msg.Topic,
		FromSeqno:    msg.FromSeqno,
		SubID:        msg.SubID,
		OriginStream: upstream.LocalID,
	}); err != nil {
		_ = ps.downstream.Send(wire.Unsubscribe{TenantID: msg.TenantID, SubID: msg.SubID, Reason: wire.UnsubscribeInvalid})
		return
	}
	ps.mu.Lock()
	ps.cold[msg.SubID] = &coldSub{namespace: msg.Namespace, topic: msg.Topic, upstream: upstream}
	ps.mu.Unlock()
}

// OnUnsubscribe tears subID's proxying down, whichever mode it used.
func (ps *PerStream) OnUnsubscribe(msg wire.Unsubscribe) {
	ps.mu.Lock()
	if cs, ok := ps.cold[msg.SubID]; ok {
		delete(ps.cold, msg.SubID)
		ps.mu.Unlock()
		_ = cs.upstream.Send(wire.Unsubscribe{TenantID: msg.TenantID, SubID: msg.SubID, Reason: msg.Reason})
		return
	}
	key, ok := ps.hot[msg.SubID]
	if ok {
		delete(ps.hot, msg.SubID)
	}
	ps.mu.Unlock()
	if ok {
		ps.shard.multiplexer.Unsubscribe(key.namespace, key.topic, DownstreamID{Session: ps, SubID: msg.SubID})
	}
}

// OnGoodbye tears down every subscription this downstream held, cold and
// hot alike.
func (ps *PerStream) OnGoodbye() {
	ps.mu.Lock()
	cold := make([]*coldSub, 0, len(ps.cold))
	for _, cs := range ps.cold {
		cold = append(cold, cs)
	}
	hot := make(map[uint64]topicKey, len(ps.hot))
	for id, k := range ps.hot {
		hot[id] = k
	}
	ps.cold = make(map[uint64]*coldSub)
	ps.hot = make(map[uint64]topicKey)
	ps.mu.Unlock()

	for _, cs := range cold {
		cs.upstream.Close()
	}
	for id, k := range hot {
		ps.shard.multiplexer.Unsubscribe(k.namespace, k.topic, DownstreamID{Session: ps, SubID: id})
	}
}

// changeRoute is invoked by PerShard when the upstream host for this
// shard moves. Stream-level subscriptions cannot survive the move (their
// upstream stream belonged to the old socket), so they are torn down with
// a Goodbye, leaving the client to resubscribe; subscription-level
// subscriptions are reset once, shard-wide, by the Multiplexer itself.
func (ps *PerStream) changeRoute() {
	ps.mu.Lock()
	cold := ps.cold
	ps.cold = make(map[uint64]*coldSub)
	ps.mu.Unlock()

	if len(cold) == 0 {
		return
	}
	_ = ps.downstream.Send(wire.Goodbye{Reason: wire.GoodbyeSocketError})
	for _, cs := range cold {
		cs.upstream.Close()
	}
}
