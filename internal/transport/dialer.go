package transport

import (
	"context"
	"net"

	"github.com/BMDan/RocketSpeed/internal/ioloop"
	"github.com/BMDan/RocketSpeed/pkg/log"
)

// TCPDialer opens a real TCP connection to a broker host and wraps it in a
// Socket. It satisfies both internal/client.Dialer and internal/proxy.Dialer,
// whose Dial(ctx, host) (*Socket, error) methods are structurally
// identical, so production code shares one implementation for both.
type TCPDialer struct {
	Loop   *ioloop.EventLoop
	Opts   Options
	Logger log.Logger
}

// NewTCPDialer constructs a TCPDialer whose dialed sockets run on loop.
func NewTCPDialer(loop *ioloop.EventLoop, opts Options, logger log.Logger) *TCPDialer {
	return &TCPDialer{Loop: loop, Opts: opts, Logger: logger}
}

// Dial opens a TCP connection to host and wraps it as an outbound Socket.
func (d *TCPDialer) Dial(ctx context.Context, host string) (*Socket, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, err
	}
	return NewSocket(conn, d.Loop, true, d.Opts, d.Logger), nil
}
