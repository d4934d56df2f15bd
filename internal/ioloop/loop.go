package ioloop

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/BMDan/RocketSpeed/internal/rserrors"
)

// Task is a unit of work submitted to an EventLoop. Tasks run to completion
// on the loop's single goroutine; they must not block.
type Task func()

// EventLoop is a single-goroutine cooperative scheduler (C1). All
// loop-owned state is touched only from the goroutine running Run; other
// goroutines interact with it exclusively through Submit, RegisterTimer,
// and Trigger.Raise.
type EventLoop struct {
	tasks    chan Task
	wake     chan struct{}
	timersMu sync.Mutex
	timers   timerHeap
	nextSeq  uint64

	triggersMu sync.Mutex
	triggers   []*Trigger

	closed chan struct{}
	once   sync.Once
}

// NewEventLoop constructs an EventLoop whose submit queue holds at most
// queueSize pending tasks before Submit starts failing with QueueFull.
func NewEventLoop(queueSize int) *EventLoop {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &EventLoop{
		tasks:  make(chan Task, queueSize),
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Submit enqueues task for execution on the loop thread. It is safe to call
// from any goroutine. Tasks from a single caller run in FIFO order; order
// across concurrent callers is unspecified. Returns a QueueFull error if
// the bounded queue is full; the caller must drop or back off, never block
// indefinitely, per the loop's non-blocking submission contract.
func (l *EventLoop) Submit(task Task) error {
	select {
	case l.tasks <- task:
		l.signalWake()
		return nil
	default:
		return rserrors.New("ioloop.Submit", rserrors.QueueFull, nil)
	}
}

func (l *EventLoop) signalWake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// TimerHandle references a registered periodic callback. Cancel stops
// further fires; it is safe to call more than once.
type TimerHandle struct {
	seq      uint64
	loop     *EventLoop
	canceled bool
}

// Cancel stops the timer from firing again. Already-queued fires that have
// not yet run are not retracted.
func (h *TimerHandle) Cancel() {
	h.loop.timersMu.Lock()
	defer h.loop.timersMu.Unlock()
	h.loop.timers.remove(h.seq)
	h.canceled = true
	h.loop.signalWake()
}

type timerEntry struct {
	seq      uint64
	deadline time.Time
	period   time.Duration
	callback func()
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
func (h *timerHeap) remove(seq uint64) {
	for i, e := range *h {
		if e.seq == seq {
			heap.Remove(h, i)
			return
		}
	}
}

// RegisterTimer schedules callback to run on the loop thread approximately
// every period. Callbacks must not block; long work must be decomposed via
// Submit. Dropping the returned handle without calling Cancel leaves the
// timer running.
func (l *EventLoop) RegisterTimer(period time.Duration, callback func()) *TimerHandle {
	l.timersMu.Lock()
	l.nextSeq++
	seq := l.nextSeq
	e := &timerEntry{seq: seq, deadline: time.Now().Add(period), period: period, callback: callback}
	heap.Push(&l.timers, e)
	l.timersMu.Unlock()
	l.signalWake()
	return &TimerHandle{seq: seq, loop: l}
}

// Trigger is a level-triggered signal shared between a credit source and
// sink for flow-control (C3). Raise marks it pending; it keeps firing its
// registered callback on every loop iteration until Lower is called.
type Trigger struct {
	mu     sync.Mutex
	raised bool
	cb     func()
	loop   *EventLoop
}

// CreateEventTrigger allocates a new Trigger not yet bound to a callback.
func (l *EventLoop) CreateEventTrigger() *Trigger {
	t := &Trigger{loop: l}
	l.triggersMu.Lock()
	l.triggers = append(l.triggers, t)
	l.triggersMu.Unlock()
	return t
}

// CreateEventCallback binds fn to run on the loop thread whenever trigger
// is in the raised state, once per loop iteration, until lowered.
func (l *EventLoop) CreateEventCallback(trigger *Trigger, fn func()) {
	trigger.mu.Lock()
	trigger.cb = fn
	trigger.mu.Unlock()
}

// Raise marks the trigger pending and wakes its loop. Safe to call from
// any goroutine.
func (t *Trigger) Raise() {
	t.mu.Lock()
	t.raised = true
	t.mu.Unlock()
	if t.loop != nil {
		t.loop.signalWake()
	}
}

// Lower clears the pending state.
func (t *Trigger) Lower() {
	t.mu.Lock()
	t.raised = false
	t.mu.Unlock()
}

// IsRaised reports the trigger's current level.
func (t *Trigger) IsRaised() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.raised
}

// Run drives the loop until ctx is canceled. It must be called from the
// goroutine that is to be considered "the loop thread" for the lifetime of
// the EventLoop.
func (l *EventLoop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.closed) })

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		l.runDueTimers()
		if l.runTriggers() {
			l.signalWake()
		}
		d := l.nextTimerDelay()
		timer.Reset(d)

		select {
		case <-ctx.Done():
			return
		case task := <-l.tasks:
			task()
		case <-l.wake:
		case <-timer.C:
		}
	}
}

// Closed is signaled once Run returns.
func (l *EventLoop) Closed() <-chan struct{} { return l.closed }

func (l *EventLoop) runDueTimers() {
	now := time.Now()
	for {
		l.timersMu.Lock()
		if len(l.timers) == 0 || l.timers[0].deadline.After(now) {
			l.timersMu.Unlock()
			return
		}
		e := heap.Pop(&l.timers).(*timerEntry)
		e.deadline = now.Add(e.period)
		heap.Push(&l.timers, e)
		cb := e.callback
		l.timersMu.Unlock()
		cb()
	}
}

func (l *EventLoop) nextTimerDelay() time.Duration {
	l.timersMu.Lock()
	defer l.timersMu.Unlock()
	if len(l.timers) == 0 {
		return time.Hour
	}
	d := time.Until(l.timers[0].deadline)
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

// runTriggers fires every raised trigger's callback once and reports
// whether any of them is still raised afterwards.
func (l *EventLoop) runTriggers() bool {
	l.triggersMu.Lock()
	triggers := append([]*Trigger(nil), l.triggers...)
	l.triggersMu.Unlock()

	pending := false
	for _, t := range triggers {
		t.mu.Lock()
		raised, cb := t.raised, t.cb
		t.mu.Unlock()
		if raised && cb != nil {
			cb()
			if t.IsRaised() {
				pending = true
			}
		}
	}
	return pending
}
