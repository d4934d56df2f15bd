package ioloop

import "errors"

// ErrSourceless names the condition of a SourcelessFlow facing a sink
// with no room. Flow.Write does not return it: a SourcelessFlow still
// delivers the item and reports room, since it has no upstream to pause.
var ErrSourceless = errors.New("ioloop: sourceless flow cannot apply backpressure")

// Sink is any consumer registered with a FlowControl. HasRoom reports
// whether it can currently accept another item without blocking.
type Sink interface {
	HasRoom() bool
}

// Flow is passed to a source's handler by FlowControl on each invocation.
// Write reports whether the sink still had room after accepting item; a
// false result means the source must stop producing until the sink's
// write-ready trigger fires again.
type Flow struct {
	sourceless bool
}

// Write delivers to sink by calling item, honoring backpressure: if sink
// has no room, item is still called (the credit model is cooperative,
// not blocking) but the returned bool tells the source to pause.
func (f *Flow) Write(sink Sink, item func()) bool {
	item()
	if f.sourceless {
		return true
	}
	return sink.HasRoom()
}

// SourcelessFlow is used during teardown, where a sink must be drained but
// there is no upstream source left to pause. It never reports backpressure.
func SourcelessFlow() *Flow { return &Flow{sourceless: true} }

// Source is registered with a FlowControl to receive a Flow-driven handler
// call whenever it has credit and its read-ready trigger is raised.
type Source struct {
	loop    *EventLoop
	trigger *Trigger
	handler func(*Flow)
	paused  bool
}

// FlowControl owns the sources registered on one loop, mirroring the
// spec's credit-based backpressure contract: a source pauses by having
// its read-ready trigger lowered, and resumes when the sink it targets
// signals readiness via its own write-ready trigger.
type FlowControl struct {
	loop    *EventLoop
	sources []*Source
}

// NewFlowControl creates a FlowControl instance owned by loop.
func NewFlowControl(loop *EventLoop) *FlowControl {
	return &FlowControl{loop: loop}
}

// RegisterSource associates handler with a fresh read-ready trigger and
// grants it initial credit by raising the trigger immediately.
func (fc *FlowControl) RegisterSource(handler func(*Flow)) *Source {
	trigger := fc.loop.CreateEventTrigger()
	src := &Source{loop: fc.loop, trigger: trigger, handler: handler}
	fc.loop.CreateEventCallback(trigger, func() {
		if src.paused {
			return
		}
		handler(&Flow{})
	})
	trigger.Raise()
	fc.sources = append(fc.sources, src)
	return src
}

// Pause removes the source from the poll set until Resume is called; used
// when a sink reports no room.
func (s *Source) Pause() {
	s.paused = true
	s.trigger.Lower()
}

// Resume re-admits the source to the poll set, typically called from a
// sink's write-ready callback once it has drained below its limit.
func (s *Source) Resume() {
	s.paused = false
	s.trigger.Raise()
}
