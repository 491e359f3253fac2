package actor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/locktel/critsec"
	"github.com/sarchlab/locktel/hooking"
	"github.com/sarchlab/locktel/latency"
	"github.com/sarchlab/locktel/sharedstate"
)

// An InterruptLine is an externally triggered event source. Each handled
// trigger counts one interrupt in the shared state and stamps it with the
// current clock reading.
//
// Like a hardware line, the handler never nests: a trigger that arrives while
// the previous one is still being handled is coalesced and counted as
// dropped instead of waiting.
type InterruptLine struct {
	*hooking.HookableBase

	name    string
	section *critsec.Section
	logger  zerolog.Logger

	// handlerLock is held while a trigger is handled. Only its holder
	// touches rec, handled and closed.
	handlerLock sync.Mutex
	rec         *latency.Recorder
	handled     uint64
	closed      bool

	dropped   atomic.Uint64
	closeOnce sync.Once
	handle    *Handle
}

// Name returns the name of the line.
func (l *InterruptLine) Name() string {
	return l.name
}

// Handle returns the join handle of the line.
func (l *InterruptLine) Handle() *Handle {
	return l.handle
}

// Trigger raises the line. It returns false if the trigger was dropped,
// either because a previous trigger is still being handled or because the
// line is closed. Trigger never waits for another trigger.
func (l *InterruptLine) Trigger() bool {
	if !l.handlerLock.TryLock() {
		l.dropped.Add(1)
		return false
	}
	defer l.handlerLock.Unlock()

	if l.closed {
		l.dropped.Add(1)
		return false
	}

	clock := l.section.Clock()
	l.section.Run(func(g sharedstate.Guard) {
		g.RecordInterrupt(clock.NowNs())
	}, sharedstate.Blocking, l.rec)

	l.handled++

	return true
}

// Drive triggers the line on every period until ctx is done. It is a
// convenience for sessions that simulate a free-running interrupt source.
func (l *InterruptLine) Drive(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Trigger()
		}
	}
}

// Close stops the line after any in-flight trigger has been handled and
// returns its Final. Close is idempotent.
func (l *InterruptLine) Close() Final {
	l.closeOnce.Do(l.finish)

	return l.handle.Join()
}

func (l *InterruptLine) finish() {
	l.handlerLock.Lock()
	l.closed = true
	stats := l.rec.Stats()
	handled := l.handled
	l.handlerLock.Unlock()

	dropped := l.dropped.Load()

	l.logger.Info().
		Str("actor", l.name).
		Uint64("irq_handled", handled).
		Uint64("irq_dropped", dropped).
		Uint64("cs_max_ns", stats.MaxNs).
		Uint64("cs_avg_ns", stats.AverageNs()).
		Msg("interrupt line exit")

	final := Final{
		Name:       l.name,
		Kind:       KindInterrupt,
		Policy:     sharedstate.Blocking,
		Iterations: handled,
		Dropped:    dropped,
		Stats:      stats,
	}

	l.InvokeHook(hooking.HookCtx{
		Domain: l,
		Pos:    HookPosActorStopped,
		Item:   final,
	})

	l.handle.complete(final)
}
