package msgloop

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/BMDan/RocketSpeed/internal/ioloop"
)

// Pool is a fixed set of ioloop.EventLoop workers. Any state a worker
// mutates is sharded to that worker alone — code running inside a worker's
// callbacks never needs locks for its own state, only for queues crossing
// worker boundaries.
type Pool struct {
	workers []*ioloop.EventLoop
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New starts numWorkers event loops, each with a submit queue of
// queueSize. Call Stop to shut every worker down.
func New(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{workers: make([]*ioloop.EventLoop, numWorkers), cancel: cancel}
	for i := 0; i < numWorkers; i++ {
		loop := ioloop.NewEventLoop(queueSize)
		p.workers[i] = loop
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			loop.Run(ctx)
		}()
	}
	return p
}

// Stop cancels every worker's loop and waits for them to drain.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

// NumWorkers reports the pool's fixed worker count.
func (p *Pool) NumWorkers() int { return len(p.workers) }

// WorkerFor deterministically hashes topic to one of the pool's workers.
// The same topic always lands on the same worker for a pool of a given
// size, which is what lets callers avoid locking per-topic state.
func (p *Pool) WorkerFor(topic string) *ioloop.EventLoop {
	idx := xxhash.Sum64String(topic) % uint64(len(p.workers))
	return p.workers[idx]
}

// WorkerAt returns the i'th worker directly, for callers (like the admin
// surface) that need to address a specific worker rather than hash to one.
func (p *Pool) WorkerAt(i int) *ioloop.EventLoop { return p.workers[i%len(p.workers)] }

// Gather fans mapFn out to every worker, collecting each worker's result on
// the caller's goroutine, then invokes reduceFn once over the full set.
// mapFn runs on each worker's own loop thread; reduceFn runs on the
// caller's goroutine once every worker has replied.
func Gather(ctx context.Context, p *Pool, mapFn func(workerIndex int) interface{}, reduceFn func(results []interface{})) {
	results := make([]interface{}, len(p.workers))
	var wg sync.WaitGroup
	for i, loop := range p.workers {
		wg.Add(1)
		i, loop := i, loop
		if err := loop.Submit(func() {
			defer wg.Done()
			results[i] = mapFn(i)
		}); err != nil {
			wg.Done()
		}
	}
	wg.Wait()
	reduceFn(results)
}
