// Package transport implements the Stream & SocketEvent layer (C2): framing
// and multiplexing of many logical streams over one byte-oriented
// connection, writev-batched writes with queue-depth backpressure, dual
// heartbeat timers, and Goodbye-driven teardown.
//
// Go's runtime already schedules blocking socket I/O onto OS threads
// behind the scenes, so unlike the teacher's (and the spec's) single
// epoll-driven reactor thread per socket, each Socket here runs a
// dedicated reader goroutine and a dedicated writer goroutine; decoded
// messages cross back onto the owning ioloop.EventLoop via Submit so that
// stream state is still touched from exactly one goroutine. The
// writev-batched write path is implemented with net.Buffers, which the Go
// runtime lowers to a single writev syscall when the underlying
// connection supports it.
package transport
