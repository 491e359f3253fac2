// Package critsec runs mutations of the shared state as timed critical
// sections.
//
// The measured duration spans from just before the acquisition attempt to
// just after the release, so it includes the time spent waiting for the lock
// as well as the time spent holding it.
package critsec

import (
	"fmt"

	"github.com/sarchlab/locktel/latency"
	"github.com/sarchlab/locktel/sharedstate"
)

// A Mutation changes the shared counters. It runs with the lock held and must
// be short and never suspend.
type Mutation func(g sharedstate.Guard)

// Outcome tells whether a Mutation was applied.
type Outcome int

const (
	// Applied means the lock was taken and the mutation ran.
	Applied Outcome = iota
	// Skipped means a best-effort acquisition failed and nothing changed.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "Applied"
	case Skipped:
		return "Skipped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// A Section binds a State to the Clock used to time critical sections on it.
type Section struct {
	state *sharedstate.State
	clock latency.Clock
}

// New creates a Section. A nil clock selects the monotonic clock.
func New(state *sharedstate.State, clock latency.Clock) *Section {
	if state == nil {
		panic("critsec: nil shared state")
	}

	if clock == nil {
		clock = latency.NewMonotonicClock()
	}

	return &Section{state: state, clock: clock}
}

// State returns the shared state the section runs on.
func (s *Section) State() *sharedstate.State {
	return s.state
}

// Clock returns the clock used for timing.
func (s *Section) Clock() latency.Clock {
	return s.clock
}

// Run acquires the lock according to the policy, applies the mutation,
// releases the lock and feeds the elapsed time to the recorder. If a
// best-effort acquisition fails, Run counts a failure and returns Skipped
// without calling the mutation.
func (s *Section) Run(
	m Mutation,
	p sharedstate.Policy,
	rec *latency.Recorder,
) Outcome {
	start := s.clock.NowNs()

	g, ok := s.state.Acquire(p)
	if !ok {
		rec.RecordFailure()
		return Skipped
	}

	apply(g, m)

	end := s.clock.NowNs()
	if end < start {
		end = start
	}

	rec.Observe(end - start)

	return Applied
}

func apply(g sharedstate.Guard, m Mutation) {
	defer g.Release()

	m(g)
}

var defaultClock = latency.NewMonotonicClock()

// Run is Section.Run on a section using the monotonic clock.
func Run(
	state *sharedstate.State,
	m Mutation,
	p sharedstate.Policy,
	rec *latency.Recorder,
) Outcome {
	return New(state, defaultClock).Run(m, p, rec)
}
