package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/locktel/critsec"
	"github.com/sarchlab/locktel/hooking"
	"github.com/sarchlab/locktel/latency"
	"github.com/sarchlab/locktel/sharedstate"
)

// A WorkerPool runs a fixed number of workers. Each worker loops for a
// bounded number of iterations, incrementing the worker counter of the
// shared state in a timed critical section on every iteration.
//
// Cancellation is cooperative. A worker checks for it at the top of each
// iteration, so an iteration that has started always completes.
type WorkerPool struct {
	*hooking.HookableBase

	name       string
	section    *critsec.Section
	numWorkers int
	iterations uint64
	policy     sharedstate.Policy
	yieldEvery uint64
	relax      time.Duration
	logger     zerolog.Logger

	lifecycle sync.Mutex
	started   bool
	cancel    context.CancelFunc
	handles   []*Handle
}

// Name returns the name of the pool.
func (p *WorkerPool) Name() string {
	return p.name
}

// NumWorkers returns the number of workers in the pool.
func (p *WorkerPool) NumWorkers() int {
	return p.numWorkers
}

// Iterations returns the iteration bound of each worker.
func (p *WorkerPool) Iterations() uint64 {
	return p.iterations
}

// Policy returns the lock-acquisition policy of the workers.
func (p *WorkerPool) Policy() sharedstate.Policy {
	return p.policy
}

// WorkerName returns the name of the i-th worker, counting from 1.
func (p *WorkerPool) WorkerName(i int) string {
	return fmt.Sprintf("%s.worker%d", p.name, i)
}

// Start launches all workers. They stop on their own when their iteration
// bound is exhausted, or earlier when ctx is cancelled or Stop is called.
func (p *WorkerPool) Start(ctx context.Context) ([]*Handle, error) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.started {
		return nil, ErrAlreadyStarted
	}

	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)

	p.handles = make([]*Handle, 0, p.numWorkers)
	workers := make([]*worker, 0, p.numWorkers)
	for i := 1; i <= p.numWorkers; i++ {
		w := &worker{
			pool:       p,
			name:       p.WorkerName(i),
			section:    p.section,
			policy:     p.policy,
			iterations: p.iterations,
			yieldEvery: p.yieldEvery,
			relax:      p.relax,
			logger:     p.logger,
			rec:        latency.NewRecorder(),
		}
		w.handle = newHandle(w.name)

		workers = append(workers, w)
		p.handles = append(p.handles, w.handle)
	}

	for _, w := range workers {
		go w.run(ctx)
	}

	return p.handles, nil
}

// Stop delivers the stop signal to all workers. It does not wait for them;
// use Join for that.
func (p *WorkerPool) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
}

// Join waits for all workers to stop and returns their Finals in worker
// order. Join returns nil if the pool was never started.
func (p *WorkerPool) Join() []Final {
	p.lifecycle.Lock()
	handles := p.handles
	p.lifecycle.Unlock()

	if handles == nil {
		return nil
	}

	finals := JoinAll(handles...)

	p.lifecycle.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.lifecycle.Unlock()

	return finals
}

// Done returns a channel that is closed when every worker has stopped.
func (p *WorkerPool) Done() <-chan struct{} {
	p.lifecycle.Lock()
	handles := p.handles
	p.lifecycle.Unlock()

	done := make(chan struct{})
	go func() {
		for _, h := range handles {
			<-h.Done()
		}
		close(done)
	}()

	return done
}
