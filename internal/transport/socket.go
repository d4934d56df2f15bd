package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BMDan/RocketSpeed/internal/ioloop"
	"github.com/BMDan/RocketSpeed/internal/rserrors"
	"github.com/BMDan/RocketSpeed/internal/wire"
	"github.com/BMDan/RocketSpeed/pkg/log"
)

// Options configures a Socket's framing, batching, and liveness behavior.
type Options struct {
	// SendQueueLimit is the queued-bytes threshold above which the socket's
	// write-ready trigger is lowered (backpressure engaged). It is raised
	// again once the queue drains to half this value.
	SendQueueLimit int
	// HeartbeatPeriod is how often the aggregated outbound heartbeat fires.
	HeartbeatPeriod time.Duration
	// HeartbeatTimeout is how long a stream may go unseen before it is
	// reported unhealthy.
	HeartbeatTimeout time.Duration
	// ConnectionWithoutStreamsKeepalive, if positive, keeps an outbound
	// socket open for this long after its last stream closes instead of
	// closing immediately.
	ConnectionWithoutStreamsKeepalive time.Duration
	// MaxReadChunk is defaulted here but not consulted by the reader:
	// readLoop reads exactly one frame per iteration, whatever its size.
	MaxReadChunk int
}

// DefaultOptions mirrors the spec's defaults: a 100ms shard poll is a proxy
// concern, not a socket one, but the socket-level heartbeat/backpressure
// knobs below are this layer's defaults.
func DefaultOptions() Options {
	return Options{
		SendQueueLimit:                    4 << 20,
		HeartbeatPeriod:                   5 * time.Second,
		HeartbeatTimeout:                  30 * time.Second,
		ConnectionWithoutStreamsKeepalive: 0,
		MaxReadChunk:                      1 << 20,
	}
}

// NotifyHealthyFunc is invoked, on the loop thread, by the periodic
// heartbeat-timeout check: on every check, once with healthy=false for
// each stream (by local id) unseen for longer than HeartbeatTimeout. It is
// never invoked with healthy=true.
type NotifyHealthyFunc func(streamID uint64, healthy bool)

// Socket multiplexes many Streams over one net.Conn, handling framing,
// write batching, backpressure, heartbeats, and Goodbye-driven teardown.
type Socket struct {
	conn net.Conn
	loop *ioloop.EventLoop
	opts Options
	log  log.Logger

	outbound bool

	mu           sync.Mutex
	streams      map[uint64]*Stream
	nextLocalID  uint64
	closed       bool
	keepaliveEnd *ioloop.TimerHandle

	writeTrigger *ioloop.Trigger
	sendCh       chan frameJob
	queuedBytes  int64

	notifyHealthy NotifyHealthyFunc
	onGoodbye     func(reason wire.GoodbyeReason)
	onNewStream   func(*Stream)

	heartbeatOut *ioloop.TimerHandle
	heartbeatIn  *ioloop.TimerHandle

	closeErr chan struct{}
	once     sync.Once
}

type frameJob struct {
	streamID uint64
	payload  []byte
}

// NewSocket wraps conn as a multiplexed Socket driven by loop. outbound
// records whether this side dialed conn; it is stored but id allocation
// does not depend on it: locally opened streams and inbound streams
// (created as frames for unknown stream ids arrive) draw their LocalID
// from the same counter.
func NewSocket(conn net.Conn, loop *ioloop.EventLoop, outbound bool, opts Options, logger log.Logger) *Socket {
	if opts.SendQueueLimit <= 0 {
		opts = DefaultOptions()
	}
	s := &Socket{
		conn:         conn,
		loop:         loop,
		opts:         opts,
		log:          logger,
		outbound:     outbound,
		streams:      make(map[uint64]*Stream),
		writeTrigger: loop.CreateEventTrigger(),
		sendCh:       make(chan frameJob, 256),
		closeErr:     make(chan struct{}),
	}
	s.writeTrigger.Raise()
	go s.readLoop()
	go s.writeLoop()
	s.heartbeatOut = loop.RegisterTimer(opts.HeartbeatPeriod, s.sendAggregatedHeartbeat)
	s.heartbeatIn = loop.RegisterTimer(opts.HeartbeatTimeout/10, s.checkStreamTimeouts)
	return s
}

// SetNotifyHealthy registers the callback the heartbeat-timeout check
// fires for streams that have gone quiet (see NotifyHealthyFunc).
func (s *Socket) SetNotifyHealthy(fn NotifyHealthyFunc) {
	s.mu.Lock()
	s.notifyHealthy = fn
	s.mu.Unlock()
}

// SetOnGoodbye registers the callback fired once, when the socket itself
// is torn down (distinct from a single stream's Goodbye).
func (s *Socket) SetOnGoodbye(fn func(reason wire.GoodbyeReason)) {
	s.mu.Lock()
	s.onGoodbye = fn
	s.mu.Unlock()
}

// WriteReadyTrigger exposes the backpressure trigger so upstream sources
// can register a create_write_callback-style resume handler.
func (s *Socket) WriteReadyTrigger() *ioloop.Trigger { return s.writeTrigger }

// SetOnNewStream registers the callback fired, on the socket's reader
// goroutine and before that frame's message is submitted to the loop, the
// first time a frame for a previously-unseen remote stream id arrives.
// This is how a server installs per-stream message routing without
// polling for newly created inbound streams.
func (s *Socket) SetOnNewStream(fn func(*Stream)) {
	s.mu.Lock()
	s.onNewStream = fn
	s.mu.Unlock()
}

// EachStream invokes fn for every stream currently open on this socket,
// for inspection by operational tooling.
func (s *Socket) EachStream(fn func(*Stream)) {
	s.mu.Lock()
	streams := make([]*Stream, 0, len(s.streams))
	for _, st := range s.streams {
		streams = append(streams, st)
	}
	s.mu.Unlock()
	for _, st := range streams {
		fn(st)
	}
}

// OpenStream allocates a fresh outbound stream on this socket.
func (s *Socket) OpenStream() *Stream {
	id := atomic.AddUint64(&s.nextLocalID, 1)
	st := &Stream{LocalID: id, RemoteID: id, Outbound: true, socket: s, lastSeen: time.Now()}
	s.mu.Lock()
	s.streams[id] = st
	s.cancelKeepaliveLocked()
	s.mu.Unlock()
	return st
}

func (s *Socket) getOrCreateInbound(remoteID uint64) *Stream {
	s.mu.Lock()
	for _, st := range s.streams {
		if st.RemoteID == remoteID {
			s.mu.Unlock()
			return st
		}
	}
	id := atomic.AddUint64(&s.nextLocalID, 1)
	st := &Stream{LocalID: id, RemoteID: remoteID, Outbound: false, socket: s, lastSeen: time.Now()}
	s.streams[id] = st
	s.cancelKeepaliveLocked()
	onNewStream := s.onNewStream
	s.mu.Unlock()

	if onNewStream != nil {
		onNewStream(st)
	}
	return st
}

func (s *Socket) removeStream(localID uint64) {
	s.mu.Lock()
	st, ok := s.streams[localID]
	if ok {
		delete(s.streams, localID)
	}
	empty := len(s.streams) == 0
	s.mu.Unlock()
	if ok {
		st.markClosed()
	}
	if empty {
		s.onStreamsEmpty()
	}
}

func (s *Socket) onStreamsEmpty() {
	if s.opts.ConnectionWithoutStreamsKeepalive <= 0 {
		s.Close(wire.GoodbyeGraceful)
		return
	}
	s.mu.Lock()
	s.keepaliveEnd = s.loop.RegisterTimer(s.opts.ConnectionWithoutStreamsKeepalive, func() {
		s.mu.Lock()
		stillEmpty := len(s.streams) == 0
		s.mu.Unlock()
		if stillEmpty {
			s.Close(wire.GoodbyeGraceful)
		}
	})
	s.mu.Unlock()
}

func (s *Socket) cancelKeepaliveLocked() {
	if s.keepaliveEnd != nil {
		s.keepaliveEnd.Cancel()
		s.keepaliveEnd = nil
	}
}

// send encodes msg and queues it for the writer goroutine, lowering the
// write-ready trigger once the queue crosses SendQueueLimit; writeLoop
// raises it again when the queue drains to half that limit.
func (s *Socket) send(streamID uint64, msg wire.Message) error {
	payload := wire.Encode(msg)
	frame := wire.EncodeFrame(streamID, payload)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return rserrors.New("transport.Socket.send", rserrors.IOError, errors.New("socket closed"))
	}
	// The send onto sendCh happens while still holding s.mu, the same lock
	// Close takes before closing sendCh, so a send can never race past the
	// closed check only to land on a channel Close has since closed out
	// from under it.
	select {
	case s.sendCh <- frameJob{streamID: streamID, payload: frame}:
		s.queuedBytes += int64(len(frame))
		over := s.queuedBytes > int64(s.opts.SendQueueLimit)
		s.mu.Unlock()
		if over {
			s.writeTrigger.Lower()
		}
		return nil
	default:
		s.mu.Unlock()
		return rserrors.New("transport.Socket.send", rserrors.QueueFull, nil)
	}
}

// writeLoop drains sendCh, batching whatever is already queued into one
// net.Buffers write so a burst of small messages collapses to one writev.
func (s *Socket) writeLoop() {
	for {
		job, ok := <-s.sendCh
		if !ok {
			return
		}
		bufs := net.Buffers{job.payload}
		total := int64(len(job.payload))

	drain:
		for {
			select {
			case next, ok := <-s.sendCh:
				if !ok {
					break drain
				}
				bufs = append(bufs, next.payload)
				total += int64(len(next.payload))
			default:
				break drain
			}
		}

		if _, err := bufs.WriteTo(s.conn); err != nil {
			s.log.Warn("socket write failed, closing", log.Err(err))
			s.Close(wire.GoodbyeSocketError)
			return
		}

		s.mu.Lock()
		s.queuedBytes -= total
		remaining := s.queuedBytes
		s.mu.Unlock()
		if remaining <= int64(s.opts.SendQueueLimit)/2 {
			s.writeTrigger.Raise()
		}
	}
}

// readLoop blocks on the connection, decoding frames and submitting
// delivery onto the owning loop so stream state stays single-threaded.
func (s *Socket) readLoop() {
	hdr := make([]byte, wire.HeaderSize)
	for {
		if _, err := io.ReadFull(s.conn, hdr); err != nil {
			s.Close(wire.GoodbyeSocketError)
			return
		}
		_, bodySize, err := wire.DecodeHeader(hdr)
		if err != nil {
			s.log.Warn("rejecting frame", log.Err(err))
			s.Close(wire.GoodbyeSocketError)
			return
		}
		body := make([]byte, bodySize)
		if _, err := io.ReadFull(s.conn, body); err != nil {
			s.Close(wire.GoodbyeSocketError)
			return
		}
		frame, err := wire.DecodeBody(body)
		if err != nil {
			s.log.Warn("rejecting frame", log.Err(err))
			s.Close(wire.GoodbyeSocketError)
			return
		}
		msg, err := wire.Decode(frame.Payload)
		if err != nil {
			// unknown message kind: close per the codec's decode contract.
			s.log.Warn("unknown message kind, closing socket", log.Err(err))
			s.Close(wire.GoodbyeSocketError)
			return
		}
		s.dispatchInbound(frame.StreamID, msg)
	}
}

func (s *Socket) dispatchInbound(streamID uint64, msg wire.Message) {
	if streamID == ControlStreamID {
		if hb, ok := msg.(wire.Heartbeat); ok {
			s.onInboundHeartbeat(hb)
		}
		return
	}
	if gb, ok := msg.(wire.Goodbye); ok {
		st := s.getOrCreateInbound(streamID)
		_ = s.loop.Submit(func() {
			st.dispatch(gb)
			s.removeStream(st.LocalID)
		})
		return
	}

	st := s.getOrCreateInbound(streamID)
	_ = s.loop.Submit(func() {
		st.dispatch(msg)
	})
}

func (s *Socket) onInboundHeartbeat(hb wire.Heartbeat) {
	now := time.Now()
	_ = s.loop.Submit(func() {
		s.mu.Lock()
		for _, id := range hb.HealthyIDs {
			for _, st := range s.streams {
				if st.RemoteID == id {
					st.lastSeen = now
				}
			}
		}
		s.mu.Unlock()
	})
}

func (s *Socket) sendAggregatedHeartbeat() {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.streams))
	for _, st := range s.streams {
		ids = append(ids, st.RemoteID)
	}
	s.mu.Unlock()
	_ = s.send(ControlStreamID, wire.Heartbeat{HealthyIDs: ids})
}

func (s *Socket) checkStreamTimeouts() {
	s.mu.Lock()
	notify := s.notifyHealthy
	var timedOut []uint64
	for id, st := range s.streams {
		if st.idleSince() > s.opts.HeartbeatTimeout {
			timedOut = append(timedOut, id)
		}
	}
	s.mu.Unlock()
	if notify == nil {
		return
	}
	for _, id := range timedOut {
		notify(id, false)
	}
}

// Close tears the socket down: stops timers, closes the connection, and
// synthesizes a Goodbye(reason) to every local stream so upper layers see
// a single uniform termination signal.
func (s *Socket) Close(reason wire.GoodbyeReason) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		streams := make([]*Stream, 0, len(s.streams))
		for _, st := range s.streams {
			streams = append(streams, st)
		}
		s.streams = make(map[uint64]*Stream)
		s.cancelKeepaliveLocked()
		cb := s.onGoodbye
		// closed is now true and sendCh is closed in the same critical
		// section send() uses, so no send() that observed closed==false
		// can reach sendCh after this unlock.
		close(s.sendCh)
		s.mu.Unlock()

		s.heartbeatOut.Cancel()
		s.heartbeatIn.Cancel()
		_ = s.conn.Close()
		close(s.closeErr)

		for _, st := range streams {
			if st.markClosed() {
				continue
			}
			st.dispatch(wire.Goodbye{Reason: reason})
		}
		if cb != nil {
			cb(reason)
		}
	})
}

// Closed is signaled once Close has fully run.
func (s *Socket) Closed() <-chan struct{} { return s.closeErr }
