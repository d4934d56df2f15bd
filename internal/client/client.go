package client

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/BMDan/RocketSpeed/internal/ioloop"
	"github.com/BMDan/RocketSpeed/internal/msgloop"
	"github.com/BMDan/RocketSpeed/internal/namespace"
	"github.com/BMDan/RocketSpeed/internal/rserrors"
	"github.com/BMDan/RocketSpeed/internal/sharding"
	"github.com/BMDan/RocketSpeed/internal/snapshot"
	"github.com/BMDan/RocketSpeed/internal/transport"
	"github.com/BMDan/RocketSpeed/internal/wire"
	"github.com/BMDan/RocketSpeed/pkg/log"
)

// PublishStatus is returned synchronously from Publish; the terminal
// ResultStatus arrives later through the caller's callback.
type PublishStatus struct {
	Err   error
	MsgID [16]byte
}

// ResultStatus is delivered to a Publish callback once the broker acks
// the write.
type ResultStatus struct {
	Status    byte
	MsgID     [16]byte
	Seqno     uint64
	Topic     string
	Namespace string
	Payload   []byte
}

// PublishOptions carries per-publish overrides; empty value means "use
// client defaults".
type PublishOptions struct{}

// Dialer opens an outbound transport.Socket to a broker host, letting
// Client stay agnostic of how hosts are actually reached (TCP in
// production, net.Pipe in tests).
type Dialer interface {
	Dial(ctx context.Context, host string) (*transport.Socket, error)
}

// Config controls a Client's worker pool sizing and routing.
type Config struct {
	NumWorkers    int
	QueueSize     int
	Router        sharding.Router
	Dialer        Dialer
	SnapshotStore *snapshot.Store
	Logger        log.Logger
}

// Client is the library-side facade: a fixed worker pool, one
// SubscriptionsMap and Socket per broker host (shared by all workers), and
// the public API from §6.
type Client struct {
	cfg   Config
	pool  *msgloop.Pool
	log   log.Logger
	state int32 // 0=unstarted, 1=started, 2=start-failed

	mu         sync.Mutex
	startErr   error
	subsByID   map[uint64]*workerBinding
	mapsByHost map[string]*SubscriptionsMap
	sockets    map[string]*transport.Socket
}

type workerBinding struct {
	loop *ioloop.EventLoop
	subs *SubscriptionsMap
}

// New constructs an unstarted Client.
func New(cfg Config) *Client {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &Client{
		cfg:        cfg,
		log:        cfg.Logger,
		subsByID:   make(map[uint64]*workerBinding),
		mapsByHost: make(map[string]*SubscriptionsMap),
		sockets:    make(map[string]*transport.Socket),
	}
}

// Start launches the worker pool. It is idempotent after failure: every
// later call returns the same startup error without retrying.
func (c *Client) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.state, 0, 1) {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.startErr
	}
	c.pool = msgloop.New(c.cfg.NumWorkers, c.cfg.QueueSize)
	return nil
}

// Stop shuts the worker pool down.
func (c *Client) Stop() {
	if c.pool != nil {
		c.pool.Stop()
	}
}

// Publish enqueues a publish onto the topic's assigned worker. Two
// independent checks run first, before anything is enqueued: tenant ids
// up to 100 (0 included) other than GuestTenant are rejected, and
// namespaces whose name is reserved (namespace.IsReserved) are off limits
// to publishers.
func (c *Client) Publish(ctx context.Context, tenant wire.TenantID, ns, topic string, opts PublishOptions, payload []byte, cb func(ResultStatus), msgID [16]byte) PublishStatus {
	if tenant <= 100 && tenant != wire.GuestTenant {
		return PublishStatus{Err: rserrors.New("client.Publish", rserrors.InvalidArgument, nil), MsgID: msgID}
	}
	if namespace.IsReserved(ns) {
		return PublishStatus{Err: rserrors.New("client.Publish", rserrors.InvalidArgument, nil), MsgID: msgID}
	}

	worker := c.pool.WorkerFor(topic)
	err := worker.Submit(func() {
		sock, serr := c.socketForTopic(ctx, ns, topic)
		if serr != nil {
			if cb != nil {
				cb(ResultStatus{Status: byte(rserrors.KindOf(serr)), MsgID: msgID, Topic: topic, Namespace: ns})
			}
			return
		}
		stream := sock.OpenStream()
		stream.OnMessage(func(msg wire.Message) {
			ack, ok := msg.(wire.DataAck)
			if !ok || cb == nil {
				return
			}
			cb(ResultStatus{Status: ack.Status, MsgID: ack.MsgID, Seqno: ack.Seqno, Topic: topic, Namespace: ns, Payload: payload})
		})
		_ = stream.Send(wire.Publish{TenantID: tenant, Namespace: ns, Topic: topic, MsgID: msgID, Payload: payload})
	})
	return PublishStatus{Err: err, MsgID: msgID}
}

// Subscribe assigns topic to a worker by hash(topic) mod N_workers,
// creates a subscription, and enqueues a start command to flush it onto
// that worker's wire connection.
func (c *Client) Subscribe(ctx context.Context, params SubscriptionParams, host string) (*Subscription, error) {
	worker := c.pool.WorkerFor(params.Topic)
	binding := c.bindingFor(worker, host)

	sub := binding.subs.Subscribe(params)
	c.mu.Lock()
	c.subsByID[sub.ID] = binding
	c.mu.Unlock()

	err := worker.Submit(func() {
		c.flushPending(ctx, binding, host)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe routes to the same worker the subscribe used and emits
// Unsubscribe(Requested). A missing subscription is a warning, not an
// error.
func (c *Client) Unsubscribe(ns, topic string) {
	// Topic-to-worker hashing is deterministic, so this always lands on
	// the same worker Subscribe used for this topic.
	c.mu.Lock()
	var binding *workerBinding
	var subID uint64
	for id, b := range c.subsByID {
		if sub, ok := b.subs.Find(id); ok && sub.Params.Namespace == ns && sub.Params.Topic == topic {
			binding, subID = b, id
			break
		}
	}
	c.mu.Unlock()

	if binding == nil {
		c.log.Warn("unsubscribe: no matching subscription", log.Str("namespace", ns), log.Str("topic", topic))
		return
	}
	_ = binding.loop.Submit(func() {
		binding.subs.Unsubscribe(subID)
	})
}

// Acknowledge records that the app has consumed through received.Current,
// moving the position a later save_subscriptions will persist.
func (c *Client) Acknowledge(received wire.DeliverData) {
	c.mu.Lock()
	binding, ok := c.subsByID[received.SubID]
	c.mu.Unlock()
	if !ok {
		return
	}
	_ = binding.loop.Submit(func() {
		binding.subs.Acknowledge(received.SubID, received.Current)
	})
}

// SaveSubscriptions snapshots every tracked subscription across every
// worker, committing one atomic batch, then invokes cb with the result.
func (c *Client) SaveSubscriptions(ctx context.Context, cb func(error)) {
	if c.cfg.SnapshotStore == nil {
		if cb != nil {
			cb(rserrors.New("client.SaveSubscriptions", rserrors.NotInitialized, nil))
		}
		return
	}

	msgloop.Gather(ctx, c.pool, func(workerIdx int) interface{} {
		c.mu.Lock()
		defer c.mu.Unlock()
		var recs []snapshot.Record
		for _, binding := range c.subsByID {
			if binding.loop != c.pool.WorkerAt(workerIdx) {
				continue
			}
			for _, sub := range binding.subs.All() {
				recs = append(recs, snapshot.Record{
					TenantID:   sub.Params.TenantID,
					Namespace:  sub.Params.Namespace,
					Topic:      sub.Params.Topic,
					StartSeqno: sub.ResumeSeqno(),
				})
			}
		}
		return recs
	}, func(results []interface{}) {
		batch := c.cfg.SnapshotStore.NewBatch()
		var err error
		for _, r := range results {
			recs, _ := r.([]snapshot.Record)
			for _, rec := range recs {
				if err = c.cfg.SnapshotStore.Append(batch, rec); err != nil {
					break
				}
			}
		}
		if err == nil {
			err = c.cfg.SnapshotStore.Commit(ctx, batch)
		}
		if cb != nil {
			cb(err)
		}
	})
}

// RestoreSubscriptions synchronously reads persisted records back from
// storage into out.
func (c *Client) RestoreSubscriptions(out *[]SubscriptionParams) error {
	if c.cfg.SnapshotStore == nil {
		return rserrors.New("client.RestoreSubscriptions", rserrors.NotInitialized, nil)
	}
	recs, err := c.cfg.SnapshotStore.Restore()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		*out = append(*out, SubscriptionParams{
			TenantID:  rec.TenantID,
			Namespace: rec.Namespace,
			Topic:     rec.Topic,
			FromSeqno: rec.StartSeqno,
		})
	}
	return nil
}

func (c *Client) bindingFor(loop *ioloop.EventLoop, host string) *workerBinding {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := host
	if subs, ok := c.mapsByHost[key]; ok {
		return &workerBinding{loop: loop, subs: subs}
	}
	subs := NewSubscriptionsMap()
	c.mapsByHost[key] = subs
	return &workerBinding{loop: loop, subs: subs}
}

func (c *Client) socketForTopic(ctx context.Context, ns, topic string) (*transport.Socket, error) {
	shard := c.cfg.Router.GetShard(ns, topic)
	host, err := c.cfg.Router.GetHost(shard)
	if err != nil {
		return nil, err
	}
	return c.socketForHost(ctx, string(host))
}

func (c *Client) socketForHost(ctx context.Context, host string) (*transport.Socket, error) {
	c.mu.Lock()
	if sock, ok := c.sockets[host]; ok {
		c.mu.Unlock()
		return sock, nil
	}
	c.mu.Unlock()

	sock, err := c.cfg.Dialer.Dial(ctx, host)
	if err != nil {
		return nil, rserrors.New("client.socketForHost", rserrors.IOError, err)
	}
	c.mu.Lock()
	c.sockets[host] = sock
	c.mu.Unlock()
	return sock, nil
}

func (c *Client) flushPending(ctx context.Context, binding *workerBinding, host string) {
	sock, err := c.socketForHost(ctx, host)
	if err != nil {
		for _, sub := range binding.subs.DrainPending() {
			if sub.Params.OnStatus != nil {
				sub.Params.OnStatus(err)
			}
		}
		return
	}

	for _, sub := range binding.subs.DrainPending() {
		stream := sock.OpenStream()
		s := sub
		stream.OnMessage(func(msg wire.Message) { binding.subs.dispatchWireMessage(s, host, msg) })
		if err := stream.Send(wire.Subscribe{
			TenantID:     sub.Params.TenantID,
			Namespace:    sub.Params.Namespace,
			Topic:        sub.Params.Topic,
			FromSeqno:    sub.Params.FromSeqno,
			SubID:        sub.ID,
			OriginStream: stream.LocalID,
		}); err != nil {
			if sub.Params.OnStatus != nil {
				sub.Params.OnStatus(err)
			}
			continue
		}
		binding.subs.MarkSynced(sub)
	}

	for id, reason := range binding.subs.DrainUnsubscribes() {
		stream := sock.OpenStream()
		_ = stream.Send(wire.Unsubscribe{SubID: id, Reason: reason})
	}
}

func (m *SubscriptionsMap) dispatchWireMessage(sub *Subscription, host string, msg wire.Message) {
	switch mm := msg.(type) {
	case wire.DeliverData:
		m.Dispatch(mm.SubID, mm.Current, func(s *Subscription) {
			if s.Params.OnData != nil {
				s.Params.OnData(mm)
			}
		})
	case wire.DeliverGap:
		if sub.Params.OnStatus != nil {
			sub.Params.OnStatus(rserrors.New("client.dispatch", rserrors.IOError, nil))
		}
	case wire.Goodbye:
		m.ReconnectTo(host)
	}
}
