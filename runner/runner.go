// Package runner assembles and runs a complete session: one shared state, a
// periodic producer, a worker pool and an interrupt line, plus the optional
// monitor and recorder.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/sarchlab/locktel/actor"
	"github.com/sarchlab/locktel/config"
	"github.com/sarchlab/locktel/datarecording"
	"github.com/sarchlab/locktel/latency"
	"github.com/sarchlab/locktel/monitoring"
	"github.com/sarchlab/locktel/reporting"
	"github.com/sarchlab/locktel/sharedstate"
)

// ErrAlreadyRan is returned when Run is called a second time.
var ErrAlreadyRan = errors.New("runner: session already ran")

// Actor names used by the runner.
const (
	ProducerName  = "producer"
	PoolName      = "pool"
	InterruptName = "irq"
)

// An Option adjusts a Runner before its actors are built.
type Option func(r *Runner)

// WithLogger sets the logger shared by all parts of the session.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithClock sets the clock used to time critical sections.
func WithClock(c latency.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithMonitorCallback sets a function that receives the monitor URL once the
// monitor is serving.
func WithMonitorCallback(f func(url string)) Option {
	return func(r *Runner) {
		r.onMonitor = f
	}
}

// Runner runs one session.
type Runner struct {
	cfg     config.Config
	session string
	logger  zerolog.Logger
	clock   latency.Clock

	state    *sharedstate.State
	producer *actor.Producer
	pool     *actor.WorkerPool
	irq      *actor.InterruptLine

	monitor   *monitoring.Monitor
	onMonitor func(url string)

	recorder *datarecording.SQLiteRecorder
	exec     *datarecording.ExecRecorder
	facade   *reporting.Facade

	runLock sync.Mutex
	ran     bool
}

// New validates cfg and builds every part of the session. No actor runs
// before Run is called, so an invalid configuration never starts anything.
func New(cfg config.Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	r := &Runner{
		cfg:     cfg,
		session: xid.New().String(),
		logger:  zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.clock == nil {
		r.clock = latency.NewMonotonicClock()
	}

	r.state = sharedstate.New()

	if err := r.buildActors(); err != nil {
		return nil, err
	}

	if err := r.buildReporting(); err != nil {
		return nil, errors.Join(err, r.closeRecorder())
	}

	if cfg.MonitorPort > 0 {
		r.buildMonitor()
	}

	return r, nil
}

func (r *Runner) buildActors() error {
	b := actor.MakeBuilder().
		WithState(r.state).
		WithClock(r.clock).
		WithLogger(r.logger).
		WithPeriod(r.cfg.ProducerPeriod).
		WithTimerWork(r.cfg.TimerWork).
		WithSummaryEvery(r.cfg.SummaryEvery).
		WithNumWorkers(r.cfg.Workers).
		WithIterations(r.cfg.Iterations).
		WithPolicy(r.cfg.Policy).
		WithYieldEvery(r.cfg.YieldEvery).
		WithRelax(r.cfg.RelaxDelay)

	var err error

	r.producer, err = b.BuildProducer(ProducerName)
	if err != nil {
		return err
	}

	r.pool, err = b.BuildWorkerPool(PoolName)
	if err != nil {
		return err
	}

	r.irq, err = b.BuildInterruptLine(InterruptName)
	if err != nil {
		return err
	}

	return nil
}

func (r *Runner) buildReporting() error {
	var recorder datarecording.DataRecorder

	if r.cfg.RecordPath != "" {
		sqlite, err := datarecording.New(r.cfg.RecordPath)
		if err != nil {
			return fmt.Errorf("creating recorder: %w", err)
		}

		r.recorder = sqlite
		recorder = sqlite

		r.exec, err = datarecording.NewExecRecorder(sqlite)
		if err != nil {
			return err
		}
	}

	facade, err := reporting.NewFacade(r.session, r.logger, recorder)
	if err != nil {
		return err
	}

	r.facade = facade
	r.producer.AcceptHook(facade)

	return nil
}

func (r *Runner) buildMonitor() {
	r.monitor = monitoring.NewMonitor().
		WithLogger(r.logger).
		WithPortNumber(r.cfg.MonitorPort)
	r.monitor.RegisterState(r.state)
	r.monitor.RegisterConfig(&r.cfg)

	r.producer.AcceptHook(r.monitor)
	r.pool.AcceptHook(r.monitor)
	r.irq.AcceptHook(r.monitor)

	for i := 1; i <= r.pool.NumWorkers(); i++ {
		r.monitor.CreateProgressBar(r.pool.WorkerName(i), r.pool.Iterations())
	}
}

// Session returns the ID of the session.
func (r *Runner) Session() string {
	return r.session
}

// State returns the shared state of the session.
func (r *Runner) State() *sharedstate.State {
	return r.state
}

// InterruptLine returns the interrupt line of the session, for callers that
// trigger it from their own event source.
func (r *Runner) InterruptLine() *actor.InterruptLine {
	return r.irq
}

// Monitor returns the monitor, or nil when monitoring is disabled.
func (r *Runner) Monitor() *monitoring.Monitor {
	return r.monitor
}

// Run starts the producer and then the workers, and waits until the workers
// have finished. Cancelling ctx or reaching the configured duration stops the
// workers early. The producer is then cancelled, the interrupt line closed
// and every actor joined before the report is collected.
func (r *Runner) Run(ctx context.Context) (reporting.Report, error) {
	r.runLock.Lock()
	defer r.runLock.Unlock()

	if r.ran {
		return reporting.Report{}, ErrAlreadyRan
	}

	r.ran = true

	r.logger.Info().
		Str("session", r.session).
		Dur("period", r.cfg.ProducerPeriod).
		Int("workers", r.cfg.Workers).
		Uint64("iterations", r.cfg.Iterations).
		Stringer("policy", r.cfg.Policy).
		Msg("session start")

	if r.exec != nil {
		r.exec.Start(r.session)
	}

	if err := r.startMonitor(); err != nil {
		return reporting.Report{}, errors.Join(err, r.finish())
	}

	if _, err := r.producer.Start(); err != nil {
		return reporting.Report{}, errors.Join(err, r.finish())
	}

	if _, err := r.pool.Start(ctx); err != nil {
		r.producer.Cancel()
		r.irq.Close()

		return reporting.Report{}, errors.Join(err, r.finish())
	}

	driveCtx, stopDrive := context.WithCancel(ctx)
	defer stopDrive()

	if r.cfg.InterruptPeriod > 0 {
		go r.irq.Drive(driveCtx, r.cfg.InterruptPeriod)
	}

	r.waitForWorkers(ctx)

	finals := r.pool.Join()
	stopDrive()
	finals = append(finals, r.producer.Cancel(), r.irq.Close())

	report := reporting.Collect(r.session, r.state, finals)

	err := r.facade.Emit(report)
	err = errors.Join(err, r.finish())

	return report, err
}

func (r *Runner) startMonitor() error {
	if r.monitor == nil {
		return nil
	}

	url, err := r.monitor.StartServer()
	if err != nil {
		return err
	}

	if r.onMonitor != nil {
		r.onMonitor(url)
	}

	return nil
}

func (r *Runner) waitForWorkers(ctx context.Context) {
	var deadline <-chan time.Time

	if r.cfg.Duration > 0 {
		timer := time.NewTimer(r.cfg.Duration)
		defer timer.Stop()

		deadline = timer.C
	}

	select {
	case <-r.pool.Done():
	case <-ctx.Done():
		r.logger.Info().Msg("session cancelled, stopping workers")
		r.pool.Stop()
	case <-deadline:
		r.logger.Info().Dur("duration", r.cfg.Duration).
			Msg("session duration reached, stopping workers")
		r.pool.Stop()
	}
}

func (r *Runner) finish() error {
	var errs []error

	if r.exec != nil {
		errs = append(errs, r.exec.End())
	}

	if r.recorder != nil {
		errs = append(errs, r.closeRecorder())
		r.logger.Info().Str("file", r.recorder.FileName()).Msg("session recorded")
	}

	if r.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		errs = append(errs, r.monitor.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

func (r *Runner) closeRecorder() error {
	if r.recorder == nil {
		return nil
	}

	return r.recorder.Close()
}
