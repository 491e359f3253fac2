package actor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/locktel/critsec"
	"github.com/sarchlab/locktel/hooking"
	"github.com/sarchlab/locktel/latency"
	"github.com/sarchlab/locktel/sharedstate"
)

// ProducerState is a state of the producer's lifecycle.
type ProducerState int32

// The producer moves Idle -> Scheduled -> Firing -> Scheduled -> ... ->
// Cancelled.
const (
	Idle ProducerState = iota
	Scheduled
	Firing
	Cancelled
)

func (s ProducerState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Scheduled:
		return "Scheduled"
	case Firing:
		return "Firing"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// A Producer updates the timer counters of the shared state on a fixed
// period.
//
// A firing must run to completion without suspending. It only uses blocking
// acquisition, which is safe as long as every other actor keeps its critical
// sections short.
type Producer struct {
	*hooking.HookableBase

	name         string
	section      *critsec.Section
	period       time.Duration
	work         uint64
	summaryEvery uint64
	logger       zerolog.Logger

	state atomic.Int32

	// fireLock is held for the whole of a firing. Only its holder touches
	// rec and firings.
	fireLock sync.Mutex
	rec      *latency.Recorder
	firings  uint64

	lifecycle sync.Mutex
	started   bool
	cancelled bool
	stop      chan struct{}
	handle    *Handle
}

// Name returns the name of the producer.
func (p *Producer) Name() string {
	return p.name
}

// Period returns the firing period.
func (p *Producer) Period() time.Duration {
	return p.period
}

// State returns the current lifecycle state.
func (p *Producer) State() ProducerState {
	return ProducerState(p.state.Load())
}

// Start schedules the producer to fire every period. The returned handle can
// be joined after Cancel.
func (p *Producer) Start() (*Handle, error) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.cancelled {
		return nil, ErrStopped
	}

	if p.started {
		return nil, ErrAlreadyStarted
	}

	p.started = true
	p.state.Store(int32(Scheduled))

	p.logger.Info().
		Str("actor", p.name).
		Dur("period", p.period).
		Msg("producer init")

	go p.run()

	return p.handle, nil
}

func (p *Producer) run() {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			p.finish()
			return
		case <-ticker.C:
			p.Fire()
		}
	}
}

// Fire runs one firing. It is the callback of the periodic schedule and may
// also be driven by an external timer. Fire never waits for another firing:
// if one is already in flight, or the producer is cancelled, it returns false
// without doing anything.
func (p *Producer) Fire() bool {
	if !p.fireLock.TryLock() {
		return false
	}
	defer p.fireLock.Unlock()

	if p.stopRequested() {
		return false
	}

	prev := p.State()

	p.state.Store(int32(Firing))

	var fires, work, workers uint64
	p.section.Run(func(g sharedstate.Guard) {
		fires, work = g.AddTimerWork(p.work)
		workers = g.WorkerCounter()
	}, sharedstate.Blocking, p.rec)

	p.firings++

	if prev == Idle {
		p.state.Store(int32(Idle))
	} else {
		p.state.Store(int32(Scheduled))
	}

	if p.summaryEvery > 0 && p.firings%p.summaryEvery == 0 {
		p.summarize(ProducerSummary{
			Fires:         fires,
			TimerWork:     work,
			WorkerCounter: workers,
			NowNs:         p.section.Clock().NowNs(),
			Stats:         p.rec.Stats(),
		})
	}

	return true
}

// stopRequested tells whether Cancel has been called, even if the schedule
// has not noticed yet.
func (p *Producer) stopRequested() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

func (p *Producer) summarize(s ProducerSummary) {
	p.logger.Info().
		Str("actor", p.name).
		Uint64("fires", s.Fires).
		Uint64("timer_work", s.TimerWork).
		Uint64("worker_counter", s.WorkerCounter).
		Uint64("now_ns", s.NowNs).
		Uint64("cs_max_ns", s.Stats.MaxNs).
		Uint64("cs_avg_ns", s.Stats.AverageNs()).
		Msg("producer summary")

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosProducerSummary,
		Item:   s,
	})
}

// Cancel stops the schedule, waits for any in-flight firing, emits the final
// summary and returns the Final of the producer. Cancel may be called any
// number of times and from any goroutine.
func (p *Producer) Cancel() Final {
	p.lifecycle.Lock()
	first := !p.cancelled
	wasStarted := p.started
	if first {
		p.cancelled = true
		close(p.stop)
	}
	p.lifecycle.Unlock()

	if first && !wasStarted {
		p.finish()
	}

	return p.handle.Join()
}

// Handle returns the join handle of the producer.
func (p *Producer) Handle() *Handle {
	return p.handle
}

func (p *Producer) finish() {
	p.fireLock.Lock()
	p.state.Store(int32(Cancelled))
	stats := p.rec.Stats()
	firings := p.firings
	p.fireLock.Unlock()

	snap := p.section.State().Snapshot()

	p.logger.Info().
		Str("actor", p.name).
		Uint64("fires", snap.TimerFires).
		Uint64("timer_work", snap.TimerWork).
		Uint64("worker_counter", snap.WorkerCounter).
		Uint64("cs_max_ns", stats.MaxNs).
		Uint64("cs_avg_ns", stats.AverageNs()).
		Uint64("samples", stats.Samples).
		Msg("producer exit")

	final := Final{
		Name:       p.name,
		Kind:       KindProducer,
		Policy:     sharedstate.Blocking,
		Iterations: firings,
		Stats:      stats,
	}

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosActorStopped,
		Item:   final,
	})

	p.handle.complete(final)
}
