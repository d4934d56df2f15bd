package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BMDan/RocketSpeed/internal/logstore"
	"github.com/BMDan/RocketSpeed/internal/msgloop"
	"github.com/BMDan/RocketSpeed/internal/namespace"
	"github.com/BMDan/RocketSpeed/internal/rserrors"
	pebblestore "github.com/BMDan/RocketSpeed/internal/storage/pebble"
	"github.com/BMDan/RocketSpeed/internal/transport"
	"github.com/BMDan/RocketSpeed/internal/wire"
	"github.com/BMDan/RocketSpeed/pkg/log"
)

// MaxCacheBytes bounds the sum of every room's delivery cache, per §4.8's
// 1 TiB ceiling on broker-side cache memory.
const MaxCacheBytes = 1 << 40

// Config configures a ControlTower's worker pool, storage, and cache sizing.
type Config struct {
	NumRooms         int
	QueueSize        int
	ReadersPerRoom   int
	CacheBytesTotal  int64
	BypassNamespaces []string
	DB               *pebblestore.DB

	// RetentionBytesPerLog caps each individual log's on-disk size; a
	// background sweeper trims the oldest entries past this budget on
	// every RetentionInterval tick. Zero disables the sweeper, and then
	// nothing trims the logs.
	RetentionBytesPerLog int64
	RetentionInterval    time.Duration
	Logger               log.Logger
}

type subMeta struct {
	origin    *transport.Stream
	clientID  uint64 // the client's own SubID, echoed back on every delivery
	roomIdx   int
	namespace string
	topic     string
}

// ControlTower owns the broker's worker pool, one Room per worker, and the
// table mapping broker-internal subscription handles back to the
// originating client stream. This is C8 in full: routing, subscribe
// validation, Goodbye fan-out, and the operational knobs in §7.
type ControlTower struct {
	cfg   Config
	pool  *msgloop.Pool
	rooms []*Room
	db    *pebblestore.DB

	mu        sync.Mutex
	logs      map[topicKey]*logstore.Log
	logIDs    map[topicKey]uint64
	nextLogID uint64
	nextSubID uint64
	subs      map[uint64]*subMeta
	byOrigin  map[*transport.Stream]map[uint64]struct{}

	sweeper *retentionSweeper
}

// New constructs a ControlTower with cfg.NumRooms rooms, each its own
// msgloop worker.
func New(cfg Config) *ControlTower {
	if cfg.NumRooms <= 0 {
		cfg.NumRooms = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.CacheBytesTotal <= 0 || cfg.CacheBytesTotal > MaxCacheBytes {
		cfg.CacheBytesTotal = MaxCacheBytes
	}
	ct := &ControlTower{
		cfg:      cfg,
		db:       cfg.DB,
		logs:     make(map[topicKey]*logstore.Log),
		logIDs:   make(map[topicKey]uint64),
		subs:     make(map[uint64]*subMeta),
		byOrigin: make(map[*transport.Stream]map[uint64]struct{}),
	}
	ct.pool = msgloop.New(cfg.NumRooms, cfg.QueueSize)
	perRoomCache := cfg.CacheBytesTotal / int64(cfg.NumRooms)
	ct.rooms = make([]*Room, cfg.NumRooms)
	for i := 0; i < cfg.NumRooms; i++ {
		ct.rooms[i] = NewRoom(ct.pool.WorkerAt(i), ct.openLog, cfg.ReadersPerRoom, perRoomCache, cfg.BypassNamespaces...)
	}
	if cfg.RetentionBytesPerLog > 0 {
		ct.sweeper = newRetentionSweeper(cfg.RetentionBytesPerLog, cfg.RetentionInterval, cfg.Logger)
		ct.sweeper.Start()
	}
	return ct
}

// Stop shuts every room's worker loop down.
func (ct *ControlTower) Stop() {
	if ct.sweeper != nil {
		ct.sweeper.Stop()
	}
	ct.pool.Stop()
}

func (ct *ControlTower) openLog(ns, topic string) (*logstore.Log, uint64, error) {
	key := topicKey{namespace: ns, topic: topic}
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if l, ok := ct.logs[key]; ok {
		return l, ct.logIDs[key], nil
	}
	if _, err := namespace.EnsureNamespace(ct.db, ns); err != nil {
		return nil, 0, rserrors.New("broker.ControlTower.openLog", rserrors.IOError, err)
	}
	l, err := logstore.OpenLog(ct.db, ns, topic, 0)
	if err != nil {
		return nil, 0, rserrors.New("broker.ControlTower.openLog", rserrors.IOError, err)
	}
	ct.nextLogID++
	id := ct.nextLogID
	ct.logs[key] = l
	ct.logIDs[key] = id
	if ct.sweeper != nil {
		ct.sweeper.Register(key, l)
	}
	return l, id, nil
}

// Subscribe routes a client's Subscribe onto the topic's room, validating
// namespace/topic before touching storage. An invalid subscribe is
// answered with Unsubscribe(Invalid) on the same origin rather than
// silently dropped.
func (ct *ControlTower) Subscribe(origin *transport.Stream, msg wire.Subscribe) {
	roomIdx := roomIndex(msg.Namespace, msg.Topic, len(ct.rooms))
	room := ct.rooms[roomIdx]

	internalID := atomic.AddUint64(&ct.nextSubID, 1)
	meta := &subMeta{origin: origin, clientID: msg.SubID, roomIdx: roomIdx, namespace: msg.Namespace, topic: msg.Topic}

	ct.mu.Lock()
	ct.subs[internalID] = meta
	if ct.byOrigin[origin] == nil {
		ct.byOrigin[origin] = make(map[uint64]struct{})
	}
	ct.byOrigin[origin][internalID] = struct{}{}
	ct.mu.Unlock()

	clientSubID := msg.SubID
	_ = ct.rooms[roomIdx].loop.Submit(func() {
		err := room.Subscribe(msg.Namespace, msg.Topic, internalID, msg.FromSeqno, func(m wire.Message) {
			rewritten := rewriteSubID(m, clientSubID)
			_ = origin.Send(rewritten)
		})
		if err != nil {
			_ = origin.Send(wire.Unsubscribe{SubID: clientSubID, Reason: wire.UnsubscribeInvalid})
			ct.forget(internalID, origin)
		}
	})
}

// Unsubscribe tears subID down on its owning room.
func (ct *ControlTower) Unsubscribe(origin *transport.Stream, msg wire.Unsubscribe) {
	internalID, ok := ct.lookupByClientID(origin, msg.SubID)
	if !ok {
		return
	}
	ct.teardown(internalID)
}

// OnGoodbye tears down every subscription the closing origin stream still
// holds, across every room it touched.
func (ct *ControlTower) OnGoodbye(origin *transport.Stream) {
	ct.mu.Lock()
	ids := make([]uint64, 0, len(ct.byOrigin[origin]))
	for id := range ct.byOrigin[origin] {
		ids = append(ids, id)
	}
	delete(ct.byOrigin, origin)
	ct.mu.Unlock()

	for _, id := range ids {
		ct.teardown(id)
	}
}

func (ct *ControlTower) teardown(internalID uint64) {
	ct.mu.Lock()
	meta, ok := ct.subs[internalID]
	if ok {
		delete(ct.subs, internalID)
		if set := ct.byOrigin[meta.origin]; set != nil {
			delete(set, internalID)
		}
	}
	ct.mu.Unlock()
	if !ok {
		return
	}
	room := ct.rooms[meta.roomIdx]
	_ = room.loop.Submit(func() { room.Unsubscribe(internalID) })
}

func (ct *ControlTower) forget(internalID uint64, origin *transport.Stream) {
	ct.mu.Lock()
	delete(ct.subs, internalID)
	if set := ct.byOrigin[origin]; set != nil {
		delete(set, internalID)
	}
	ct.mu.Unlock()
}

func (ct *ControlTower) lookupByClientID(origin *transport.Stream, clientID uint64) (uint64, bool) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	for id := range ct.byOrigin[origin] {
		if meta := ct.subs[id]; meta != nil && meta.clientID == clientID {
			return id, true
		}
	}
	return 0, false
}

// Publish appends payload on (ns, topic)'s room, acking the origin stream
// with either a seqno or a failure status. Reserved namespaces are
// rejected here too, not just at internal/client.Client.Publish, since a
// wire-protocol publisher can bypass that client-side check entirely.
func (ct *ControlTower) Publish(ctx context.Context, origin *transport.Stream, msg wire.Publish) {
	if namespace.IsReserved(msg.Namespace) {
		_ = origin.Send(wire.DataAck{MsgID: msg.MsgID, Status: byte(rserrors.InvalidArgument)})
		return
	}
	roomIdx := roomIndex(msg.Namespace, msg.Topic, len(ct.rooms))
	room := ct.rooms[roomIdx]
	_ = room.loop.Submit(func() {
		seqno, err := room.Publish(ctx, msg.Namespace, msg.Topic, msg.MsgID, msg.Payload)
		status := byte(rserrors.Ok)
		if err != nil {
			status = byte(rserrors.KindOf(err))
		}
		_ = origin.Send(wire.DataAck{MsgID: msg.MsgID, Seqno: seqno, Status: status})
	})
}

// FindTailSeqno answers a client's FindTailSeqno request.
func (ct *ControlTower) FindTailSeqno(ctx context.Context, origin *transport.Stream, msg wire.FindTailSeqno) {
	roomIdx := roomIndex(msg.Namespace, msg.Topic, len(ct.rooms))
	room := ct.rooms[roomIdx]
	_ = room.loop.Submit(func() {
		room.FindTailSeqno(ctx, msg.Namespace, msg.Topic, func(seqno uint64, found bool) {
			if !found {
				return
			}
			_ = origin.Send(wire.TailSeqno{Seqno: seqno})
		})
	})
}

// tailSeqnoResult is the boxed return value a FindTailSeqno callback hands
// back across the room's loop boundary to FindTailSeqnoSync's caller.
type tailSeqnoResult struct {
	seqno uint64
	found bool
}

// FindTailSeqnoSync answers FindTailSeqno synchronously, for callers
// outside the wire protocol (the admin surface) that want a direct
// result rather than a callback on some origin stream.
func (ct *ControlTower) FindTailSeqnoSync(ctx context.Context, ns, topic string) (uint64, bool) {
	roomIdx := roomIndex(ns, topic, len(ct.rooms))
	room := ct.rooms[roomIdx]
	out := make(chan tailSeqnoResult, 1)
	if err := room.loop.Submit(func() {
		room.FindTailSeqno(ctx, ns, topic, func(seqno uint64, found bool) {
			out <- tailSeqnoResult{seqno: seqno, found: found}
		})
	}); err != nil {
		return 0, false
	}
	select {
	case r := <-out:
		return r.seqno, r.found
	case <-ctx.Done():
		return 0, false
	}
}

// CacheStat reports aggregate delivery-cache usage across every room.
func (ct *ControlTower) CacheStat(ctx context.Context) (used, capacity int64) {
	msgloop.Gather(ctx, ct.pool, func(i int) interface{} {
		u, c := ct.rooms[i].CacheUsage()
		return [2]int64{u, c}
	}, func(results []interface{}) {
		for _, r := range results {
			pair, _ := r.([2]int64)
			used += pair[0]
			capacity += pair[1]
		}
	})
	return used, capacity
}

// SetCacheCapacity splits capacity equally across every room, clamped to
// MaxCacheBytes in aggregate.
func (ct *ControlTower) SetCacheCapacity(ctx context.Context, capacity int64) {
	if capacity > MaxCacheBytes {
		capacity = MaxCacheBytes
	}
	perRoom := capacity / int64(len(ct.rooms))
	msgloop.Gather(ctx, ct.pool, func(i int) interface{} {
		ct.rooms[i].SetCacheCapacity(perRoom)
		return nil
	}, func([]interface{}) {})
}

// ClearCache evicts every room's delivery cache.
func (ct *ControlTower) ClearCache(ctx context.Context) {
	msgloop.Gather(ctx, ct.pool, func(i int) interface{} {
		ct.rooms[i].ClearCache()
		return nil
	}, func([]interface{}) {})
}

// Logs lists every topic currently open across all rooms, for the "logs"
// admin command.
func (ct *ControlTower) Logs() []string {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	out := make([]string, 0, len(ct.logIDs))
	for key := range ct.logIDs {
		out = append(out, key.namespace+"/"+key.topic)
	}
	return out
}

// SubscriptionInfo is a snapshot of one live subscription, for the
// operational surface.
type SubscriptionInfo struct {
	Namespace string
	Topic     string
	ClientID  uint64
}

// Subscriptions lists every subscription currently tracked, across all
// rooms.
func (ct *ControlTower) Subscriptions() []SubscriptionInfo {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	out := make([]SubscriptionInfo, 0, len(ct.subs))
	for _, meta := range ct.subs {
		out = append(out, SubscriptionInfo{Namespace: meta.namespace, Topic: meta.topic, ClientID: meta.clientID})
	}
	return out
}

// LogID returns the broker-internal id assigned to (ns, topic), if open.
func (ct *ControlTower) LogID(ns, topic string) (uint64, bool) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	id, ok := ct.logIDs[topicKey{namespace: ns, topic: topic}]
	return id, ok
}

func rewriteSubID(m wire.Message, clientID uint64) wire.Message {
	switch v := m.(type) {
	case wire.DeliverData:
		v.SubID = clientID
		return v
	case wire.DeliverGap:
		v.SubID = clientID
		return v
	default:
		return m
	}
}
