package reporting_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/locktel/actor"
	"github.com/sarchlab/locktel/latency"
	"github.com/sarchlab/locktel/reporting"
	"github.com/sarchlab/locktel/sharedstate"
)

func applyN(state *sharedstate.State, n int, m func(g sharedstate.Guard)) {
	for i := 0; i < n; i++ {
		g, _ := state.Acquire(sharedstate.Blocking)
		m(g)
		g.Release()
	}
}

var _ = Describe("Report", func() {
	var (
		state  *sharedstate.State
		finals []actor.Final
	)

	BeforeEach(func() {
		state = sharedstate.New()
		applyN(state, 3, func(g sharedstate.Guard) { g.AddTimerWork(10) })
		applyN(state, 5, func(g sharedstate.Guard) { g.IncrementWorker() })

		finals = []actor.Final{
			{
				Name:       "producer",
				Kind:       actor.KindProducer,
				Iterations: 3,
				Stats:      latency.Stats{MaxNs: 40, TotalNs: 90, Samples: 3},
			},
			{
				Name:       "pool.worker1",
				Kind:       actor.KindWorker,
				Policy:     sharedstate.BestEffort,
				Iterations: 7,
				Stats: latency.Stats{
					MaxNs: 100, TotalNs: 101, Samples: 5, LockFailures: 2,
				},
			},
			{
				Name: "pool.worker2",
				Kind: actor.KindWorker,
			},
		}
	})

	It("should compute per-actor and combined statistics", func() {
		r := reporting.Collect("s1", state, finals)

		Expect(r.Session).To(Equal("s1"))
		Expect(r.Shared.TimerFires).To(Equal(uint64(3)))
		Expect(r.Shared.TimerWork).To(Equal(uint64(30)))
		Expect(r.Actors).To(HaveLen(3))

		p, ok := r.Actor("producer")
		Expect(ok).To(BeTrue())
		Expect(p.AvgNs).To(Equal(uint64(30)))
		Expect(p.Policy).To(Equal("blocking"))

		w1, _ := r.Actor("pool.worker1")
		Expect(w1.AvgNs).To(Equal(uint64(20)))
		Expect(w1.LockFailures).To(Equal(uint64(2)))
		Expect(w1.Policy).To(Equal("best-effort"))

		w2, _ := r.Actor("pool.worker2")
		Expect(w2.Samples).To(BeZero())
		Expect(w2.AvgNs).To(BeZero())

		Expect(r.Combined.Samples).To(Equal(uint64(8)))
		Expect(r.Combined.MaxNs).To(Equal(uint64(100)))
		Expect(r.Combined.AvgNs).To(Equal(uint64(191 / 8)))
		Expect(r.Combined.LockFailures).To(Equal(uint64(2)))
		Expect(r.Combined.Iterations).To(Equal(uint64(10)))
	})

	It("should verify a consistent report", func() {
		Expect(reporting.Collect("s1", state, finals).Verify()).To(Succeed())
	})

	It("should detect lost updates", func() {
		applyN(state, 1, func(g sharedstate.Guard) { g.IncrementWorker() })

		err := reporting.Collect("s1", state, finals).Verify()

		Expect(err).To(MatchError(reporting.ErrLostUpdate))
		Expect(err.Error()).To(ContainSubstring("worker_counter=6"))
	})

	It("should not find unknown actors", func() {
		_, ok := reporting.Collect("s1", state, finals).Actor("nobody")
		Expect(ok).To(BeFalse())
	})
})
