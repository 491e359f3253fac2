package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarchlab/locktel/sharedstate"
)

// sharedCollector exports the shared counters. Each scrape takes one
// snapshot under the lock, so the exported values are consistent.
type sharedCollector struct {
	state *sharedstate.State

	timerFires    *prometheus.Desc
	timerWork     *prometheus.Desc
	workerCounter *prometheus.Desc
	irqCount      *prometheus.Desc
}

func newSharedCollector(state *sharedstate.State) *sharedCollector {
	return &sharedCollector{
		state: state,
		timerFires: prometheus.NewDesc("locktel_shared_timer_fires",
			"Number of producer firings applied to the shared state.", nil, nil),
		timerWork: prometheus.NewDesc("locktel_shared_timer_work",
			"Work accumulated by the producer in the shared state.", nil, nil),
		workerCounter: prometheus.NewDesc("locktel_shared_worker_counter",
			"Worker increments applied to the shared state.", nil, nil),
		irqCount: prometheus.NewDesc("locktel_shared_irq_count",
			"Interrupts applied to the shared state.", nil, nil),
	}
}

func (c *sharedCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.timerFires
	ch <- c.timerWork
	ch <- c.workerCounter
	ch <- c.irqCount
}

func (c *sharedCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.state.Snapshot()

	ch <- prometheus.MustNewConstMetric(
		c.timerFires, prometheus.CounterValue, float64(snap.TimerFires))
	ch <- prometheus.MustNewConstMetric(
		c.timerWork, prometheus.CounterValue, float64(snap.TimerWork))
	ch <- prometheus.MustNewConstMetric(
		c.workerCounter, prometheus.CounterValue, float64(snap.WorkerCounter))
	ch <- prometheus.MustNewConstMetric(
		c.irqCount, prometheus.CounterValue, float64(snap.IRQCount))
}

// actorMetrics are fed by hooks with values the actors hand out.
type actorMetrics struct {
	summaries    *prometheus.CounterVec
	producerMax  *prometheus.GaugeVec
	producerAvg  *prometheus.GaugeVec
	progress     *prometheus.GaugeVec
	samples      *prometheus.GaugeVec
	lockFailures *prometheus.GaugeVec
	finalMax     *prometheus.GaugeVec
}

func newActorMetrics(reg prometheus.Registerer) *actorMetrics {
	m := &actorMetrics{
		summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "locktel_producer_summaries_total",
			Help: "Summaries emitted by producers.",
		}, []string{"actor"}),
		producerMax: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "locktel_producer_cs_max_ns",
			Help: "Longest producer critical section at the last summary.",
		}, []string{"actor"}),
		producerAvg: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "locktel_producer_cs_avg_ns",
			Help: "Average producer critical section at the last summary.",
		}, []string{"actor"}),
		progress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "locktel_worker_iterations",
			Help: "Iterations finished by a worker at its last yield.",
		}, []string{"actor"}),
		samples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "locktel_actor_samples",
			Help: "Critical sections applied by a stopped actor.",
		}, []string{"actor", "kind"}),
		lockFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "locktel_actor_lock_failures",
			Help: "Failed best-effort acquisitions of a stopped actor.",
		}, []string{"actor", "kind"}),
		finalMax: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "locktel_actor_cs_max_ns",
			Help: "Longest critical section of a stopped actor.",
		}, []string{"actor", "kind"}),
	}

	reg.MustRegister(
		m.summaries,
		m.producerMax,
		m.producerAvg,
		m.progress,
		m.samples,
		m.lockFailures,
		m.finalMax,
	)

	return m
}
