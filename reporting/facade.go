package reporting

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sarchlab/locktel/actor"
	"github.com/sarchlab/locktel/datarecording"
	"github.com/sarchlab/locktel/hooking"
)

// Tables written by the Facade.
const (
	ActorReportTable     = "actor_report"
	SharedCountersTable  = "shared_counters"
	ProducerSummaryTable = "producer_summary"
)

type actorRecord struct {
	Session      string
	Name         string
	Kind         string
	Policy       string
	Iterations   uint64
	Samples      uint64
	MaxNs        uint64
	TotalNs      uint64
	AvgNs        uint64
	LockFailures uint64
	Dropped      uint64
	Cancelled    bool
}

type sharedRecord struct {
	Session       string
	TimerFires    uint64
	TimerWork     uint64
	WorkerCounter uint64
	IRQCount      uint64
	IRQLastTSNs   uint64
}

type summaryRecord struct {
	Session       string
	Actor         string
	Fires         uint64
	TimerWork     uint64
	WorkerCounter uint64
	NowNs         uint64
	MaxNs         uint64
	AvgNs         uint64
}

// A Facade emits reports to the log and, optionally, to a DataRecorder. It
// also serves as a hook that records the summaries of producers.
type Facade struct {
	session  string
	logger   zerolog.Logger
	recorder datarecording.DataRecorder

	lock      sync.Mutex
	summaries []summaryRecord
}

// NewFacade creates a Facade. A nil recorder disables recording.
func NewFacade(
	session string,
	logger zerolog.Logger,
	recorder datarecording.DataRecorder,
) (*Facade, error) {
	f := &Facade{
		session:  session,
		logger:   logger,
		recorder: recorder,
	}

	if recorder == nil {
		return f, nil
	}

	tables := []struct {
		name   string
		sample any
	}{
		{ActorReportTable, actorRecord{}},
		{SharedCountersTable, sharedRecord{}},
		{ProducerSummaryTable, summaryRecord{}},
	}

	for _, t := range tables {
		if err := recorder.CreateTable(t.name, t.sample); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// Func keeps producer summaries until Emit writes them. It implements
// hooking.Hook. It runs inside a producer firing, so it only appends to
// memory and never touches the recorder.
func (f *Facade) Func(ctx hooking.HookCtx) {
	if f.recorder == nil || ctx.Pos != actor.HookPosProducerSummary {
		return
	}

	s, ok := ctx.Item.(actor.ProducerSummary)
	if !ok {
		return
	}

	name := ""
	if ctx.Domain != nil {
		name = ctx.Domain.Name()
	}

	f.lock.Lock()
	f.summaries = append(f.summaries, summaryRecord{
		Session:       f.session,
		Actor:         name,
		Fires:         s.Fires,
		TimerWork:     s.TimerWork,
		WorkerCounter: s.WorkerCounter,
		NowNs:         s.NowNs,
		MaxNs:         s.Stats.MaxNs,
		AvgNs:         s.Stats.AverageNs(),
	})
	f.lock.Unlock()
}

// Emit logs one line per actor and one combined line, then records the
// report together with the producer summaries collected so far. It returns
// every recording error.
func (f *Facade) Emit(r Report) error {
	for _, a := range r.Actors {
		logActor(f.logger.Info(), a).Msg("actor report")
	}

	logActor(f.logger.Info(), r.Combined).
		Uint64("timer_fires", r.Shared.TimerFires).
		Uint64("timer_work", r.Shared.TimerWork).
		Uint64("worker_counter", r.Shared.WorkerCounter).
		Uint64("irq_count", r.Shared.IRQCount).
		Msg("final report")

	if f.recorder == nil {
		return nil
	}

	f.lock.Lock()
	summaries := f.summaries
	f.summaries = nil
	f.lock.Unlock()

	var errs []error
	for _, s := range summaries {
		errs = append(errs, f.recorder.InsertData(ProducerSummaryTable, s))
	}

	errs = append(errs, f.record(r))

	return errors.Join(errs...)
}

func logActor(e *zerolog.Event, a ActorReport) *zerolog.Event {
	return e.
		Str("actor", a.Name).
		Str("kind", a.Kind).
		Str("policy", a.Policy).
		Uint64("iterations", a.Iterations).
		Uint64("samples", a.Samples).
		Uint64("cs_max_ns", a.MaxNs).
		Uint64("cs_avg_ns", a.AvgNs).
		Uint64("lock_failures", a.LockFailures).
		Uint64("dropped", a.Dropped).
		Bool("cancelled", a.Cancelled)
}

func (f *Facade) record(r Report) error {
	rows := make([]ActorReport, 0, len(r.Actors)+1)
	rows = append(rows, r.Actors...)
	rows = append(rows, r.Combined)

	for _, a := range rows {
		err := f.recorder.InsertData(ActorReportTable, actorRecord{
			Session:      f.session,
			Name:         a.Name,
			Kind:         a.Kind,
			Policy:       a.Policy,
			Iterations:   a.Iterations,
			Samples:      a.Samples,
			MaxNs:        a.MaxNs,
			TotalNs:      a.TotalNs,
			AvgNs:        a.AvgNs,
			LockFailures: a.LockFailures,
			Dropped:      a.Dropped,
			Cancelled:    a.Cancelled,
		})
		if err != nil {
			return err
		}
	}

	err := f.recorder.InsertData(SharedCountersTable, sharedRecord{
		Session:       f.session,
		TimerFires:    r.Shared.TimerFires,
		TimerWork:     r.Shared.TimerWork,
		WorkerCounter: r.Shared.WorkerCounter,
		IRQCount:      r.Shared.IRQCount,
		IRQLastTSNs:   r.Shared.IRQLastTSNs,
	})
	if err != nil {
		return err
	}

	return f.recorder.Flush()
}
