package reporting_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/sarchlab/locktel/actor"
	"github.com/sarchlab/locktel/datarecording"
	"github.com/sarchlab/locktel/hooking"
	"github.com/sarchlab/locktel/latency"
	"github.com/sarchlab/locktel/reporting"
	"github.com/sarchlab/locktel/sharedstate"
)

var _ = Describe("Facade", func() {
	var (
		buf    *bytes.Buffer
		logger zerolog.Logger
		report reporting.Report
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		logger = zerolog.New(buf)

		state := sharedstate.New()
		applyN(state, 2, func(g sharedstate.Guard) { g.IncrementWorker() })

		report = reporting.Collect("s1", state, []actor.Final{{
			Name:       "pool.worker1",
			Kind:       actor.KindWorker,
			Iterations: 2,
			Stats:      latency.Stats{MaxNs: 9, TotalNs: 12, Samples: 2},
		}})
	})

	It("should log one line per actor and a combined line", func() {
		f, err := reporting.NewFacade("s1", logger, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(f.Emit(report)).To(Succeed())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(2))

		var last map[string]any
		Expect(json.Unmarshal([]byte(lines[1]), &last)).To(Succeed())
		Expect(last["message"]).To(Equal("final report"))
		Expect(last["worker_counter"]).To(BeNumerically("==", 2))
		Expect(last["cs_avg_ns"]).To(BeNumerically("==", 6))
	})

	It("should record reports and producer summaries", func() {
		rec, err := datarecording.New(filepath.Join(GinkgoT().TempDir(), "report"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(rec.Close)

		f, err := reporting.NewFacade("s1", logger, rec)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.ListTables()).To(ConsistOf(
			reporting.ActorReportTable,
			reporting.SharedCountersTable,
			reporting.ProducerSummaryTable,
		))

		f.Func(hooking.HookCtx{
			Pos: actor.HookPosProducerSummary,
			Item: actor.ProducerSummary{
				Fires:     1000,
				TimerWork: 10000,
				Stats:     latency.Stats{MaxNs: 5, TotalNs: 5000, Samples: 1000},
			},
		})
		f.Func(hooking.HookCtx{Pos: actor.HookPosActorStopped})

		Expect(f.Emit(report)).To(Succeed())

		var actors int
		Expect(rec.QueryRow("SELECT COUNT(*) FROM actor_report;").Scan(&actors)).
			To(Succeed())
		Expect(actors).To(Equal(2))

		var counter int
		Expect(rec.QueryRow("SELECT WorkerCounter FROM shared_counters;").
			Scan(&counter)).To(Succeed())
		Expect(counter).To(Equal(2))

		var fires, avg int
		Expect(rec.QueryRow("SELECT Fires, AvgNs FROM producer_summary;").
			Scan(&fires, &avg)).To(Succeed())
		Expect(fires).To(Equal(1000))
		Expect(avg).To(Equal(5))
	})
	It("should not write summaries before the report is emitted", func() {
		rec, err := datarecording.New(filepath.Join(GinkgoT().TempDir(), "summary"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(rec.Close)
		rec.SetBatchSize(1)

		f, err := reporting.NewFacade("s1", logger, rec)
		Expect(err).NotTo(HaveOccurred())

		f.Func(hooking.HookCtx{
			Pos:  actor.HookPosProducerSummary,
			Item: actor.ProducerSummary{Fires: 1000},
		})

		var rows int
		Expect(rec.QueryRow("SELECT COUNT(*) FROM producer_summary;").
			Scan(&rows)).To(Succeed())
		Expect(rows).To(BeZero())

		Expect(f.Emit(report)).To(Succeed())

		Expect(rec.QueryRow("SELECT COUNT(*) FROM producer_summary;").
			Scan(&rows)).To(Succeed())
		Expect(rows).To(Equal(1))
	})
})
