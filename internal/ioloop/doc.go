// Package ioloop implements the single-threaded cooperative event loop
// (C1) that every broker room, proxy worker, and client thread runs on top
// of: a bounded task queue, timers, and level-triggered callbacks, all
// dispatched from one goroutine via a for{select} reactor.
//
// The shape follows the background-loop-with-stop-channel idiom the teacher
// uses for its lease sweeper (internal/workqueue's StartSweeper), generalized
// from a single fixed-interval tick into an arbitrary submit/timer/trigger
// multiplexer.
package ioloop
