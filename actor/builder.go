package actor

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/locktel/critsec"
	"github.com/sarchlab/locktel/hooking"
	"github.com/sarchlab/locktel/latency"
	"github.com/sarchlab/locktel/sharedstate"
)

// Default settings of the actors.
const (
	DefaultPeriod       = 20 * time.Millisecond
	DefaultTimerWork    = 10
	DefaultSummaryEvery = 1000
	DefaultIterations   = 100000
	DefaultNumWorkers   = 2
	DefaultYieldEvery   = 4096
)

// Builder builds actors that share one state and one clock.
type Builder struct {
	state  *sharedstate.State
	clock  latency.Clock
	logger zerolog.Logger

	period       time.Duration
	timerWork    uint64
	summaryEvery uint64

	numWorkers int
	iterations uint64
	policy     sharedstate.Policy
	yieldEvery uint64
	relax      time.Duration
}

// MakeBuilder creates a Builder with the default settings.
func MakeBuilder() Builder {
	return Builder{
		logger:       zerolog.Nop(),
		period:       DefaultPeriod,
		timerWork:    DefaultTimerWork,
		summaryEvery: DefaultSummaryEvery,
		numWorkers:   DefaultNumWorkers,
		iterations:   DefaultIterations,
		policy:       sharedstate.Blocking,
		yieldEvery:   DefaultYieldEvery,
	}
}

// WithState sets the shared state the actors contend on.
func (b Builder) WithState(s *sharedstate.State) Builder {
	b.state = s
	return b
}

// WithClock sets the clock used to time critical sections.
func (b Builder) WithClock(c latency.Clock) Builder {
	b.clock = c
	return b
}

// WithLogger sets the logger of the actors.
func (b Builder) WithLogger(l zerolog.Logger) Builder {
	b.logger = l
	return b
}

// WithPeriod sets the firing period of the producer.
func (b Builder) WithPeriod(d time.Duration) Builder {
	b.period = d
	return b
}

// WithTimerWork sets how much work each producer firing accounts for.
func (b Builder) WithTimerWork(n uint64) Builder {
	b.timerWork = n
	return b
}

// WithSummaryEvery sets after how many firings the producer logs a summary.
// Zero disables the periodic summaries.
func (b Builder) WithSummaryEvery(n uint64) Builder {
	b.summaryEvery = n
	return b
}

// WithNumWorkers sets the number of workers of a pool.
func (b Builder) WithNumWorkers(n int) Builder {
	b.numWorkers = n
	return b
}

// WithIterations sets the iteration bound of each worker.
func (b Builder) WithIterations(n uint64) Builder {
	b.iterations = n
	return b
}

// WithPolicy sets the lock-acquisition policy of the workers.
func (b Builder) WithPolicy(p sharedstate.Policy) Builder {
	b.policy = p
	return b
}

// WithYieldEvery sets after how many iterations a worker yields. Zero
// disables yielding.
func (b Builder) WithYieldEvery(n uint64) Builder {
	b.yieldEvery = n
	return b
}

// WithRelax sets how long a worker backs off after a failed best-effort
// acquisition. Zero means a scheduler yield.
func (b Builder) WithRelax(d time.Duration) Builder {
	b.relax = d
	return b
}

func (b Builder) section() (*critsec.Section, error) {
	if b.state == nil {
		return nil, ErrNoSharedState
	}

	return critsec.New(b.state, b.clock), nil
}

// BuildProducer creates a periodic producer.
func (b Builder) BuildProducer(name string) (*Producer, error) {
	section, err := b.section()
	if err != nil {
		return nil, err
	}

	if b.period <= 0 {
		return nil, fmt.Errorf("%w: producer period %s", ErrInvalidSetting, b.period)
	}

	p := &Producer{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		section:      section,
		period:       b.period,
		work:         b.timerWork,
		summaryEvery: b.summaryEvery,
		logger:       b.logger,
		rec:          latency.NewRecorder(),
		stop:         make(chan struct{}),
		handle:       newHandle(name),
	}
	p.state.Store(int32(Idle))

	return p, nil
}

// BuildWorkerPool creates a pool of workers.
func (b Builder) BuildWorkerPool(name string) (*WorkerPool, error) {
	section, err := b.section()
	if err != nil {
		return nil, err
	}

	if b.numWorkers < 1 {
		return nil, fmt.Errorf("%w: %d workers", ErrInvalidSetting, b.numWorkers)
	}

	if b.iterations == 0 {
		return nil, fmt.Errorf("%w: zero iterations", ErrInvalidSetting)
	}

	if b.policy != sharedstate.Blocking && b.policy != sharedstate.BestEffort {
		return nil, fmt.Errorf("%w: policy %s", ErrInvalidSetting, b.policy)
	}

	return &WorkerPool{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		section:      section,
		numWorkers:   b.numWorkers,
		iterations:   b.iterations,
		policy:       b.policy,
		yieldEvery:   b.yieldEvery,
		relax:        b.relax,
		logger:       b.logger,
	}, nil
}

// BuildInterruptLine creates an interrupt line.
func (b Builder) BuildInterruptLine(name string) (*InterruptLine, error) {
	section, err := b.section()
	if err != nil {
		return nil, err
	}

	return &InterruptLine{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		section:      section,
		logger:       b.logger,
		rec:          latency.NewRecorder(),
		handle:       newHandle(name),
	}, nil
}
