package ioloop

import (
	"time"

	"github.com/BMDan/RocketSpeed/internal/rserrors"
)

// SubmitSync posts fn to the loop and blocks the calling goroutine until fn
// has run, returning its result. This is the "WorkerRequestSync" escape
// hatch: it is only ever called from outside the loop thread, for the rare
// synchronous operations (statistics aggregation, map-reduce collection)
// that cannot be expressed as a fire-and-forget Submit. It never blocks
// past timeout; a timeout still lets fn run later since it was already
// enqueued.
func SubmitSync(l *EventLoop, timeout time.Duration, fn func() interface{}) (interface{}, error) {
	done := make(chan interface{}, 1)
	if err := l.Submit(func() {
		done <- fn()
	}); err != nil {
		return nil, err
	}
	select {
	case result := <-done:
		return result, nil
	case <-time.After(timeout):
		return nil, rserrors.New("ioloop.SubmitSync", rserrors.TimedOut, nil)
	}
}
