package transport

import (
	"sync"
	"time"

	"github.com/BMDan/RocketSpeed/internal/wire"
)

// ControlStreamID is reserved for socket-level control traffic (the
// aggregated Heartbeat) that is not associated with any one logical
// stream.
const ControlStreamID uint64 = 0

// Stream is one logical, ordered message channel multiplexed over a
// Socket. Inbound streams carry the peer-allocated id as RemoteID and a
// locally allocated LocalID; outbound streams use the same id for both.
type Stream struct {
	LocalID  uint64
	RemoteID uint64
	Outbound bool

	socket *Socket

	mu        sync.Mutex
	onMessage func(wire.Message)
	lastSeen  time.Time
	closed    bool
	closeOnce sync.Once
}

// OnMessage registers the delivery callback invoked, on the socket's
// owning loop thread, for every message arriving on this stream.
func (s *Stream) OnMessage(fn func(wire.Message)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

// Send serializes and queues msg for delivery on this stream.
func (s *Stream) Send(msg wire.Message) error {
	return s.socket.send(s.RemoteID, msg)
}

// Close tears the stream down locally and sends a graceful Goodbye to the
// peer for this stream id.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		_ = s.socket.send(s.RemoteID, wire.Goodbye{Reason: wire.GoodbyeGraceful})
		s.socket.removeStream(s.LocalID)
	})
}

func (s *Stream) dispatch(msg wire.Message) {
	s.mu.Lock()
	s.lastSeen = time.Now()
	cb := s.onMessage
	s.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

func (s *Stream) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Stream) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSeen)
}

func (s *Stream) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.closed
	s.closed = true
	return was
}
