package proxy

import (
	"context"
	"sync"
	"time"

	"github.com/BMDan/RocketSpeed/internal/ioloop"
	"github.com/BMDan/RocketSpeed/internal/rserrors"
	"github.com/BMDan/RocketSpeed/internal/sharding"
	"github.com/BMDan/RocketSpeed/internal/transport"
	"github.com/BMDan/RocketSpeed/internal/wire"
)

// routeVersionPoll is how often PerShard checks the Router for a host
// binding change, per spec §4.7's 100ms version-poll cadence.
const routeVersionPoll = 100 * time.Millisecond

// Dialer opens an outbound transport.Socket to an upstream broker host.
// Mirrors internal/client.Dialer so production code shares one
// implementation and tests can fake both with the same stub.
type Dialer interface {
	Dial(ctx context.Context, host string) (*transport.Socket, error)
}

// PerShard aggregates every downstream connection proxying requests for
// one logical shard onto a single upstream host, re-resolving that host
// whenever the Router's version advances.
type PerShard struct {
	shard        uint32
	router       sharding.Router
	dialer       Dialer
	hotPredicate *sharding.HotTopicPredicate
	multiplexer  *Multiplexer
	loop         *ioloop.EventLoop

	mu           sync.Mutex
	lastVersion  uint64
	host         sharding.HostID
	upstream     *transport.Socket
	upstreamErr  error
	streams      map[*transport.Stream]*PerStream
	upstreamByID map[uint64]*transport.Stream
	timer        *ioloop.TimerHandle
}

// NewPerShard constructs a PerShard for shard, polling router for host
// changes on loop. The shard is its own Multiplexer's UpstreamSubscriber:
// hot-topic subscriptions aggregated by the Multiplexer open their single
// upstream stream through this same shard's upstreamSocket.
func NewPerShard(shard uint32, router sharding.Router, dialer Dialer, hotPredicate *sharding.HotTopicPredicate, accCapacity int, loop *ioloop.EventLoop) *PerShard {
	ps := &PerShard{
		shard:        shard,
		router:       router,
		dialer:       dialer,
		hotPredicate: hotPredicate,
		loop:         loop,
		streams:      make(map[*transport.Stream]*PerStream),
		upstreamByID: make(map[uint64]*transport.Stream),
	}
	ps.multiplexer = NewMultiplexer(ps, accCapacity)
	ps.timer = loop.RegisterTimer(routeVersionPoll, ps.pollRoute)
	return ps
}

// Stop cancels the version-poll timer; live streams and upstream sockets
// are left to their owners to close.
func (ps *PerShard) Stop() {
	if ps.timer != nil {
		ps.timer.Cancel()
	}
}

// AttachStream registers downstream as a new client connection proxied
// through this shard, returning the PerStream that will decide, per
// Subscribe, between stream-level and subscription-level proxying.
func (ps *PerShard) AttachStream(downstream *transport.Stream) *PerStream {
	pst := newPerStream(downstream, ps)
	ps.mu.Lock()
	ps.streams[downstream] = pst
	ps.mu.Unlock()
	return pst
}

// DetachStream drops downstream's PerStream once its connection closes.
func (ps *PerShard) DetachStream(downstream *transport.Stream) {
	ps.mu.Lock()
	delete(ps.streams, downstream)
	ps.mu.Unlock()
}

func (ps *PerShard) pollRoute() {
	version := ps.router.GetVersion()
	ps.mu.Lock()
	if version == ps.lastVersion {
		ps.mu.Unlock()
		return
	}
	ps.lastVersion = version
	ps.mu.Unlock()
	ps.resolveHost()
}

func (ps *PerShard) resolveHost() {
	host, err := ps.router.GetHost(ps.shard)

	ps.mu.Lock()
	changed := err == nil && host != ps.host
	if err != nil {
		ps.upstreamErr = err
	} else {
		ps.host = host
		ps.upstreamErr = nil
	}
	oldSocket := ps.upstream
	if changed {
		ps.upstream = nil
	}
	streams := make([]*PerStream, 0, len(ps.streams))
	for _, s := range ps.streams {
		streams = append(streams, s)
	}
	ps.mu.Unlock()

	if !changed {
		return
	}
	if oldSocket != nil {
		oldSocket.Close(wire.GoodbyeSocketError)
	}
	for _, s := range streams {
		s.changeRoute()
	}
	ps.multiplexer.Reset()
}

// upstreamSocket returns the live socket to this shard's current host,
// dialing lazily and caching the result until the next route change.
func (ps *PerShard) upstreamSocket() (*transport.Socket, error) {
	ps.mu.Lock()
	if ps.upstream != nil {
		sock := ps.upstream
		ps.mu.Unlock()
		return sock, nil
	}
	host := ps.host
	ps.mu.Unlock()

	if host == "" {
		h, err := ps.router.GetHost(ps.shard)
		if err != nil {
			return nil, rserrors.New("proxy.PerShard.upstreamSocket", rserrors.NotFound, err)
		}
		host = h
		ps.mu.Lock()
		ps.host = host
		ps.mu.Unlock()
	}

	sock, err := ps.dialer.Dial(context.Background(), string(host))
	if err != nil {
		return nil, rserrors.New("proxy.PerShard.upstreamSocket", rserrors.IOError, err)
	}
	ps.mu.Lock()
	ps.upstream = sock
	ps.mu.Unlock()
	return sock, nil
}

// Subscribe satisfies UpstreamSubscriber for this shard's Multiplexer,
// opening a single upstream stream per aggregated topic subscription.
func (ps *PerShard) Subscribe(ns, topic string, fromSeqno uint64, deliver func(wire.Message)) (uint64, error) {
	sock, err := ps.upstreamSocket()
	if err != nil {
		return 0, err
	}
	stream := sock.OpenStream()
	stream.OnMessage(deliver)
	if err := stream.Send(wire.Subscribe{Namespace: ns, Topic: topic, FromSeqno: fromSeqno, SubID: stream.LocalID, OriginStream: stream.LocalID}); err != nil {
		return 0, rserrors.New("proxy.PerShard.Subscribe", rserrors.IOError, err)
	}
	ps.mu.Lock()
	ps.upstreamByID[stream.LocalID] = stream
	ps.mu.Unlock()
	return stream.LocalID, nil
}

// Unsubscribe satisfies UpstreamSubscriber, closing the upstream stream
// that carried upstreamSubID.
func (ps *PerShard) Unsubscribe(upstreamSubID uint64) {
	ps.mu.Lock()
	stream, ok := ps.upstreamByID[upstreamSubID]
	delete(ps.upstreamByID, upstreamSubID)
	ps.mu.Unlock()
	if !ok {
		return
	}
	stream.Close()
}
