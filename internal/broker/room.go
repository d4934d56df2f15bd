package broker

import (
	"context"

	"github.com/cespare/xxhash/v2"

	"github.com/BMDan/RocketSpeed/internal/ioloop"
	"github.com/BMDan/RocketSpeed/internal/logstore"
	"github.com/BMDan/RocketSpeed/internal/rserrors"
	"github.com/BMDan/RocketSpeed/internal/wire"
)

// LogOpener resolves a (namespace, topic) pair to its backing log, assigning
// a logID stable for the life of the process. Supplied by the ControlTower,
// which owns the storage handle every room's logs are opened against.
type LogOpener func(namespace, topic string) (*logstore.Log, uint64, error)

// Room owns one worker's slice of topics: its own LogTailer, TopicTailer,
// and subscription index, all touched only from loop's goroutine. This
// mirrors msgloop.Pool's no-cross-worker-locks discipline one level up.
type Room struct {
	loop        *ioloop.EventLoop
	logTailer   *LogTailer
	topicTailer *TopicTailer
	opener      LogOpener

	subsByID map[uint64]topicKey
}

// NewRoom constructs a room bound to loop, opening logs through opener and
// capping its delivery cache at cacheCapacity bytes.
func NewRoom(loop *ioloop.EventLoop, opener LogOpener, readersPerRoom int, cacheCapacity int64, bypassNamespaces ...string) *Room {
	lt := NewLogTailer(readersPerRoom, func(fn func()) {
		if err := loop.Submit(fn); err != nil {
			// Worker is shutting down or saturated; the record is simply
			// not delivered this round, matching the at-least-once, not
			// exactly-once, delivery guarantee in §4.8.
			return
		}
	})
	return &Room{
		loop:        loop,
		logTailer:   lt,
		topicTailer: NewTopicTailer(lt, cacheCapacity, bypassNamespaces...),
		opener:      opener,
		subsByID:    make(map[uint64]topicKey),
	}
}

// Subscribe opens or extends a topic's tailer for subID starting at
// fromSeqno, dispatching a deliver callback for every record that callback
// will own. Rejects an invalid namespace/topic with Unsubscribe(Invalid) via
// the returned error rather than silently dropping the request.
func (r *Room) Subscribe(ns, topic string, subID, fromSeqno uint64, deliver func(wire.Message)) error {
	if ns == "" || topic == "" {
		return rserrors.New("broker.Room.Subscribe", rserrors.InvalidArgument, nil)
	}
	l, logID, err := r.opener(ns, topic)
	if err != nil {
		return err
	}
	if err := r.topicTailer.AddSubscriber(logID, l, ns, topic, subID, fromSeqno, deliver); err != nil {
		return err
	}
	r.subsByID[subID] = topicKey{namespace: ns, topic: topic}
	return nil
}

// Unsubscribe removes subID from its topic, if still present.
func (r *Room) Unsubscribe(subID uint64) {
	key, ok := r.subsByID[subID]
	if !ok {
		return
	}
	delete(r.subsByID, subID)
	r.topicTailer.RemoveSubscriber(key.namespace, key.topic, subID)
}

// UnsubscribeAll tears down every subscription belonging to origin's
// stream, the way a Goodbye on the origin connection fans out across every
// room that stream had subscriptions in.
func (r *Room) UnsubscribeAll(subIDs []uint64) {
	for _, id := range subIDs {
		r.Unsubscribe(id)
	}
}

// FindTailSeqno answers FindTailSeqno, preferring the in-memory estimate
// and falling back to an async storage lookup when nothing is cached.
func (r *Room) FindTailSeqno(ctx context.Context, ns, topic string, cb func(seqno uint64, found bool)) {
	if seqno, ok := r.topicTailer.GetTailSeqnoEstimate(ns, topic); ok {
		cb(seqno, true)
		return
	}
	l, _, err := r.opener(ns, topic)
	if err != nil {
		cb(0, false)
		return
	}
	r.logTailer.FindLatestSeqno(l, func(seqno uint64, found bool) {
		_ = r.loop.Submit(func() { cb(seqno, found) })
	})
}

// Publish appends payload to (ns, topic)'s log; LogTailer's poll loop picks
// up the new record and fans it to subscribers on its own.
func (r *Room) Publish(ctx context.Context, ns, topic string, msgID [16]byte, payload []byte) (uint64, error) {
	l, _, err := r.opener(ns, topic)
	if err != nil {
		return 0, err
	}
	seqs, err := l.Append(ctx, []logstore.AppendRecord{{Header: msgID[:], Payload: payload}})
	if err != nil || len(seqs) == 0 {
		return 0, err
	}
	return seqs[0], nil
}

// CacheUsage reports the room's delivery cache occupancy.
func (r *Room) CacheUsage() (used, capacity int64) { return r.topicTailer.cache.Usage() }

// SetCacheCapacity resizes the room's delivery cache.
func (r *Room) SetCacheCapacity(capacity int64) { r.topicTailer.cache.SetCapacity(capacity) }

// ClearCache evicts every cached record.
func (r *Room) ClearCache() { r.topicTailer.cache.Clear() }

// roomIndex deterministically hashes a topic to one of numRooms rooms, the
// same xxhash-mod idiom internal/sharding and internal/msgloop use.
func roomIndex(ns, topic string, numRooms int) int {
	return int(xxhash.Sum64String(ns+"/"+topic) % uint64(numRooms))
}
