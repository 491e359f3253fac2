// Package actor provides the independently scheduled units that contend on a
// shared state: a periodic producer, a pool of workers, and an interrupt line.
//
// Every actor owns its latency.Recorder exclusively. The statistics leave an
// actor only through the Final value returned by joining its Handle, which
// becomes available once the actor has fully stopped.
package actor

import (
	"errors"

	"github.com/sarchlab/locktel/hooking"
	"github.com/sarchlab/locktel/latency"
	"github.com/sarchlab/locktel/sharedstate"
)

var (
	// ErrNoSharedState is returned when an actor is built without a shared
	// state.
	ErrNoSharedState = errors.New("actor: shared state is not initialized")

	// ErrAlreadyStarted is returned when an actor is started twice.
	ErrAlreadyStarted = errors.New("actor: already started")

	// ErrStopped is returned when starting an actor that has been stopped.
	ErrStopped = errors.New("actor: already stopped")

	// ErrInvalidSetting is returned when a builder is given an unusable
	// setting.
	ErrInvalidSetting = errors.New("actor: invalid setting")
)

// Kind tells what sort of actor produced a Final.
type Kind string

// The kinds of actors.
const (
	KindProducer  Kind = "producer"
	KindWorker    Kind = "worker"
	KindInterrupt Kind = "interrupt"
)

// Final is what remains of an actor after it has stopped.
type Final struct {
	Name   string             `json:"name"`
	Kind   Kind               `json:"kind"`
	Policy sharedstate.Policy `json:"policy"`

	// Iterations counts loop iterations for workers, firings for the
	// producer and handled triggers for the interrupt line.
	Iterations uint64 `json:"iterations"`

	// Dropped counts interrupt triggers that were coalesced while a
	// previous trigger was being handled.
	Dropped uint64 `json:"dropped"`

	// Cancelled is set when a worker stopped before its iteration bound.
	Cancelled bool `json:"cancelled"`

	Stats latency.Stats `json:"stats"`
}

// A Handle is the join handle of a running actor.
type Handle struct {
	name  string
	done  chan struct{}
	final Final
}

func newHandle(name string) *Handle {
	return &Handle{name: name, done: make(chan struct{})}
}

// Name returns the name of the actor.
func (h *Handle) Name() string {
	return h.name
}

// Done is closed once the actor has stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Join waits for the actor to stop and returns its Final.
func (h *Handle) Join() Final {
	<-h.done
	return h.final
}

func (h *Handle) complete(f Final) {
	h.final = f
	close(h.done)
}

// JoinAll joins every handle in order.
func JoinAll(handles ...*Handle) []Final {
	finals := make([]Final, 0, len(handles))
	for _, h := range handles {
		finals = append(finals, h.Join())
	}

	return finals
}

// HookPosProducerSummary fires on every summary of the producer. The item is
// a ProducerSummary.
var HookPosProducerSummary = &hooking.HookPos{Name: "ProducerSummary"}

// HookPosWorkerProgress fires when a worker yields. The item is a Progress.
var HookPosWorkerProgress = &hooking.HookPos{Name: "WorkerProgress"}

// HookPosActorStopped fires once when an actor stops. The item is its Final.
var HookPosActorStopped = &hooking.HookPos{Name: "ActorStopped"}

// ProducerSummary is the periodic report of the producer.
type ProducerSummary struct {
	Fires         uint64        `json:"fires"`
	TimerWork     uint64        `json:"timer_work"`
	WorkerCounter uint64        `json:"worker_counter"`
	NowNs         uint64        `json:"now_ns"`
	Stats         latency.Stats `json:"stats"`
}

// Progress tells how far a worker is through its iterations.
type Progress struct {
	Actor string `json:"actor"`
	Done  uint64 `json:"done"`
	Total uint64 `json:"total"`
}
