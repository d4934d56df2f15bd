package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/BMDan/RocketSpeed/internal/ioloop"
	"github.com/BMDan/RocketSpeed/internal/wire"
	"github.com/BMDan/RocketSpeed/pkg/log"
)

func newTestPair(t *testing.T) (*Socket, *Socket) {
	t.Helper()
	a, b := net.Pipe()
	loopA := ioloop.NewEventLoop(64)
	loopB := ioloop.NewEventLoop(64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go loopA.Run(ctx)
	go loopB.Run(ctx)

	opts := DefaultOptions()
	opts.HeartbeatPeriod = time.Hour
	opts.HeartbeatTimeout = time.Hour

	logger := log.NewLogger(log.WithOutput(log.NullOutput{}))
	sockA := NewSocket(a, loopA, true, opts, logger)
	sockB := NewSocket(b, loopB, false, opts, logger)
	t.Cleanup(func() {
		sockA.Close(wire.GoodbyeGraceful)
		sockB.Close(wire.GoodbyeGraceful)
	})
	return sockA, sockB
}

func TestStreamSendDeliversOnPeer(t *testing.T) {
	sockA, sockB := newTestPair(t)

	received := make(chan wire.Message, 1)
	sockB.SetOnGoodbye(func(wire.GoodbyeReason) {})

	streamA := sockA.OpenStream()
	// The peer learns the stream id from the first frame it decodes.
	var sawStream *Stream
	done := make(chan struct{})
	go func() {
		for {
			sockB.mu.Lock()
			for _, st := range sockB.streams {
				sawStream = st
			}
			n := len(sockB.streams)
			sockB.mu.Unlock()
			if n > 0 {
				close(done)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	if err := streamA.Send(wire.Ping{Nonce: 7}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("peer never saw inbound stream")
	}

	sawStream.OnMessage(func(m wire.Message) { received <- m })
	// OnMessage registered after first dispatch would race in a real loop;
	// here we just re-send to exercise the now-registered callback path.
	if err := streamA.Send(wire.Ping{Nonce: 8}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case msg := <-received:
		ping, ok := msg.(wire.Ping)
		if !ok || ping.Nonce != 8 {
			t.Fatalf("got %#v, want Ping{Nonce: 8}", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestGoodbyeRemovesStream(t *testing.T) {
	sockA, sockB := newTestPair(t)

	streamA := sockA.OpenStream()
	if err := streamA.Send(wire.Ping{Nonce: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	streamA.Close()
	time.Sleep(50 * time.Millisecond)

	sockB.mu.Lock()
	n := len(sockB.streams)
	sockB.mu.Unlock()
	if n != 0 {
		t.Fatalf("sockB.streams = %d, want 0", n)
	}
}

// TestConcurrentSendAndCloseDoesNotPanic guards against send() racing
// Close(): a send that passes the closed check just as Close() closes
// sendCh must never reach a send on the now-closed channel.
func TestConcurrentSendAndCloseDoesNotPanic(t *testing.T) {
	sockA, _ := newTestPair(t)
	streamA := sockA.OpenStream()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = streamA.Send(wire.Ping{Nonce: uint64(i)})
		}
	}()

	sockA.Close(wire.GoodbyeGraceful)
	wg.Wait()
}

func TestSocketCloseSynthesizesGoodbyeToLocalStreams(t *testing.T) {
	sockA, _ := newTestPair(t)
	streamA := sockA.OpenStream()

	received := make(chan wire.Message, 1)
	streamA.OnMessage(func(m wire.Message) { received <- m })

	sockA.Close(wire.GoodbyeSocketError)

	select {
	case msg := <-received:
		gb, ok := msg.(wire.Goodbye)
		if !ok || gb.Reason != wire.GoodbyeSocketError {
			t.Fatalf("got %#v, want Goodbye{Reason: SocketError}", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("local stream never received synthesized goodbye")
	}
}
