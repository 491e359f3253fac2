// Package reporting turns the Finals of stopped actors and the final shared
// counters into one consolidated report.
package reporting

import (
	"errors"
	"fmt"

	"github.com/sarchlab/locktel/actor"
	"github.com/sarchlab/locktel/latency"
	"github.com/sarchlab/locktel/sharedstate"
)

// ErrLostUpdate is returned by Verify when a shared counter disagrees with
// the number of critical sections the actors applied.
var ErrLostUpdate = errors.New("shared counter does not match applied critical sections")

// ActorReport is the final statistics of one actor.
type ActorReport struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Policy       string `json:"policy"`
	Iterations   uint64 `json:"iterations"`
	Samples      uint64 `json:"samples"`
	MaxNs        uint64 `json:"cs_max_ns"`
	TotalNs      uint64 `json:"cs_total_ns"`
	AvgNs        uint64 `json:"cs_avg_ns"`
	LockFailures uint64 `json:"lock_failures"`
	Dropped      uint64 `json:"dropped"`
	Cancelled    bool   `json:"cancelled"`
}

// Report is the consolidated result of a session.
type Report struct {
	Session  string               `json:"session"`
	Shared   sharedstate.Snapshot `json:"shared"`
	Actors   []ActorReport        `json:"actors"`
	Combined ActorReport          `json:"combined"`
}

func makeActorReport(name, kind, policy string, stats latency.Stats) ActorReport {
	return ActorReport{
		Name:         name,
		Kind:         kind,
		Policy:       policy,
		Samples:      stats.Samples,
		MaxNs:        stats.MaxNs,
		TotalNs:      stats.TotalNs,
		AvgNs:        stats.AverageNs(),
		LockFailures: stats.LockFailures,
	}
}

// Collect reads the shared state once under its lock and combines it with
// the Finals of the actors. Finals only exist for actors that have been
// joined, so no running actor can be reported on.
func Collect(
	session string,
	state *sharedstate.State,
	finals []actor.Final,
) Report {
	r := Report{
		Session: session,
		Shared:  state.Snapshot(),
		Actors:  make([]ActorReport, 0, len(finals)),
	}

	var (
		combined   latency.Stats
		iterations uint64
		dropped    uint64
	)

	for _, f := range finals {
		a := makeActorReport(f.Name, string(f.Kind), f.Policy.String(), f.Stats)
		a.Iterations = f.Iterations
		a.Dropped = f.Dropped
		a.Cancelled = f.Cancelled
		r.Actors = append(r.Actors, a)

		combined = combined.Merge(f.Stats)
		iterations += f.Iterations
		dropped += f.Dropped
	}

	r.Combined = makeActorReport("all", "combined", "", combined)
	r.Combined.Iterations = iterations
	r.Combined.Dropped = dropped

	return r
}

// Verify checks that every shared counter equals the number of critical
// sections applied by the actors of the matching kind.
func (r Report) Verify() error {
	var producer, workers, interrupts uint64

	for _, a := range r.Actors {
		switch actor.Kind(a.Kind) {
		case actor.KindProducer:
			producer += a.Samples
		case actor.KindWorker:
			workers += a.Samples
		case actor.KindInterrupt:
			interrupts += a.Samples
		}
	}

	var errs []error

	if producer != r.Shared.TimerFires {
		errs = append(errs, fmt.Errorf("%w: timer_fires=%d, applied=%d",
			ErrLostUpdate, r.Shared.TimerFires, producer))
	}

	if workers != r.Shared.WorkerCounter {
		errs = append(errs, fmt.Errorf("%w: worker_counter=%d, applied=%d",
			ErrLostUpdate, r.Shared.WorkerCounter, workers))
	}

	if interrupts != r.Shared.IRQCount {
		errs = append(errs, fmt.Errorf("%w: irq_count=%d, applied=%d",
			ErrLostUpdate, r.Shared.IRQCount, interrupts))
	}

	return errors.Join(errs...)
}

// Actor returns the report of the named actor.
func (r Report) Actor(name string) (ActorReport, bool) {
	for _, a := range r.Actors {
		if a.Name == name {
			return a, true
		}
	}

	return ActorReport{}, false
}
