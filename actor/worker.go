package actor

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/locktel/critsec"
	"github.com/sarchlab/locktel/hooking"
	"github.com/sarchlab/locktel/latency"
	"github.com/sarchlab/locktel/sharedstate"
)

// worker is one execution unit of a WorkerPool.
type worker struct {
	pool       *WorkerPool
	name       string
	section    *critsec.Section
	policy     sharedstate.Policy
	iterations uint64
	yieldEvery uint64
	relax      time.Duration
	logger     zerolog.Logger

	rec    *latency.Recorder
	handle *Handle
}

func (w *worker) Name() string {
	return w.name
}

func incrementWorker(g sharedstate.Guard) {
	g.IncrementWorker()
}

func (w *worker) run(ctx context.Context) {
	w.logger.Info().
		Str("actor", w.name).
		Uint64("loops", w.iterations).
		Stringer("policy", w.policy).
		Msg("worker starting")

	var (
		i         uint64
		cancelled bool
	)

	for i = 0; i < w.iterations; i++ {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		if w.section.Run(incrementWorker, w.policy, w.rec) == critsec.Skipped {
			w.backOff()
		}

		if w.yieldEvery > 0 && i%w.yieldEvery == 0 {
			runtime.Gosched()
			w.reportProgress(i + 1)
		}
	}

	w.finish(i, cancelled)
}

func (w *worker) backOff() {
	if w.relax > 0 {
		time.Sleep(w.relax)
		return
	}

	runtime.Gosched()
}

func (w *worker) reportProgress(done uint64) {
	w.pool.InvokeHook(hooking.HookCtx{
		Domain: w.pool,
		Pos:    HookPosWorkerProgress,
		Item: Progress{
			Actor: w.name,
			Done:  done,
			Total: w.iterations,
		},
	})
}

func (w *worker) finish(iterations uint64, cancelled bool) {
	stats := w.rec.Stats()

	w.logger.Info().
		Str("actor", w.name).
		Uint64("iterations", iterations).
		Bool("cancelled", cancelled).
		Uint64("samples", stats.Samples).
		Uint64("cs_max_ns", stats.MaxNs).
		Uint64("cs_avg_ns", stats.AverageNs()).
		Uint64("lock_failures", stats.LockFailures).
		Msg("worker exiting")

	w.reportProgress(iterations)

	final := Final{
		Name:       w.name,
		Kind:       KindWorker,
		Policy:     w.policy,
		Iterations: iterations,
		Cancelled:  cancelled,
		Stats:      stats,
	}

	w.pool.InvokeHook(hooking.HookCtx{
		Domain: w.pool,
		Pos:    HookPosActorStopped,
		Item:   final,
	})

	w.handle.complete(final)
}
