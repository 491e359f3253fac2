// Package sharedstate provides the counter block that all actors contend on.
//
// The counters of a State are never reachable without holding its lock. The
// only way to read or write them is through a Guard, which is returned by a
// successful Acquire and must be released by the same actor before it does
// anything else that might suspend.
package sharedstate

import "sync"

// State is the cross-actor mutable counter block. A State is created with New
// and handed to every actor at construction time.
type State struct {
	lock sync.Mutex

	// updated by the periodic producer
	timerFires uint64
	timerWork  uint64

	// updated by the worker pool
	workerCounter uint64

	// updated by the interrupt line
	irqCount    uint64
	irqLastTSNs uint64
}

// New creates a State with all counters set to zero.
func New() *State {
	return &State{}
}

// Acquire takes the lock according to the given policy. Under the BestEffort
// policy, the second return value is false when the lock is held by someone
// else; the returned Guard must not be used in that case.
func (s *State) Acquire(p Policy) (Guard, bool) {
	if p == BestEffort {
		if !s.lock.TryLock() {
			return Guard{}, false
		}

		return Guard{s: s}, true
	}

	s.lock.Lock()

	return Guard{s: s}, true
}

// Snapshot takes the lock, copies all counters and releases the lock.
func (s *State) Snapshot() Snapshot {
	g, _ := s.Acquire(Blocking)
	defer g.Release()

	return g.Snapshot()
}

// Snapshot is a consistent copy of the counters of a State.
type Snapshot struct {
	TimerFires    uint64 `json:"timer_fires"`
	TimerWork     uint64 `json:"timer_work"`
	WorkerCounter uint64 `json:"worker_counter"`
	IRQCount      uint64 `json:"irq_count"`
	IRQLastTSNs   uint64 `json:"irq_last_ts_ns"`
}

// Guard grants access to the counters while the lock is held.
//
// A Guard is only valid between a successful Acquire and the matching
// Release. Releasing twice is a programming error.
type Guard struct {
	s *State
}

// Release unlocks the State.
func (g Guard) Release() {
	g.s.lock.Unlock()
}

// AddTimerWork counts one timer firing and adds work to the accumulated timer
// work. It returns the counters after the update.
func (g Guard) AddTimerWork(work uint64) (fires, totalWork uint64) {
	g.s.timerFires++
	g.s.timerWork += work

	return g.s.timerFires, g.s.timerWork
}

// IncrementWorker increments the worker counter and returns its new value.
func (g Guard) IncrementWorker() uint64 {
	g.s.workerCounter++

	return g.s.workerCounter
}

// RecordInterrupt counts one interrupt and remembers its timestamp.
func (g Guard) RecordInterrupt(tsNs uint64) uint64 {
	g.s.irqCount++
	g.s.irqLastTSNs = tsNs

	return g.s.irqCount
}

// WorkerCounter returns the current worker counter.
func (g Guard) WorkerCounter() uint64 {
	return g.s.workerCounter
}

// Snapshot copies all counters.
func (g Guard) Snapshot() Snapshot {
	return Snapshot{
		TimerFires:    g.s.timerFires,
		TimerWork:     g.s.timerWork,
		WorkerCounter: g.s.workerCounter,
		IRQCount:      g.s.irqCount,
		IRQLastTSNs:   g.s.irqLastTSNs,
	}
}
