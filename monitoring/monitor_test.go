package monitoring

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/sarchlab/locktel/actor"
	"github.com/sarchlab/locktel/hooking"
	"github.com/sarchlab/locktel/latency"
	"github.com/sarchlab/locktel/sharedstate"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Monitor", func() {
	var (
		m      *Monitor
		state  *sharedstate.State
		server *httptest.Server
	)

	get := func(path string) (int, string) {
		rsp, err := http.Get(server.URL + path)
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		body, err := io.ReadAll(rsp.Body)
		Expect(err).NotTo(HaveOccurred())

		return rsp.StatusCode, string(body)
	}

	BeforeEach(func() {
		state = sharedstate.New()
		m = NewMonitor()
		m.RegisterState(state)
		server = httptest.NewServer(m.Router())
	})

	AfterEach(func() {
		server.Close()
	})

	It("should serve a snapshot of the shared state", func() {
		g, _ := state.Acquire(sharedstate.Blocking)
		g.AddTimerWork(10)
		g.IncrementWorker()
		g.Release()

		code, body := get("/api/state")
		Expect(code).To(Equal(http.StatusOK))

		var snap sharedstate.Snapshot
		Expect(json.Unmarshal([]byte(body), &snap)).To(Succeed())
		Expect(snap.TimerFires).To(Equal(uint64(1)))
		Expect(snap.TimerWork).To(Equal(uint64(10)))
		Expect(snap.WorkerCounter).To(Equal(uint64(1)))
	})

	It("should track worker progress through hooks", func() {
		m.Func(hooking.HookCtx{
			Pos:  actor.HookPosWorkerProgress,
			Item: actor.Progress{Actor: "pool.worker0", Done: 4096, Total: 10000},
		})
		m.Func(hooking.HookCtx{
			Pos:  actor.HookPosWorkerProgress,
			Item: actor.Progress{Actor: "pool.worker0", Done: 1, Total: 10000},
		})

		code, body := get("/api/progress")
		Expect(code).To(Equal(http.StatusOK))

		var bars []progressBarView
		Expect(json.Unmarshal([]byte(body), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("pool.worker0"))
		Expect(bars[0].Finished).To(Equal(uint64(4096)))
		Expect(bars[0].Total).To(Equal(uint64(10000)))
		Expect(bars[0].Completed).To(BeFalse())

		m.Func(hooking.HookCtx{
			Pos: actor.HookPosActorStopped,
			Item: actor.Final{
				Name:       "pool.worker0",
				Kind:       actor.KindWorker,
				Iterations: 10000,
				Stats:      latency.Stats{Samples: 10000, MaxNs: 42},
			},
		})

		code, body = get("/api/progress/pool.worker0")
		Expect(code).To(Equal(http.StatusOK))

		var bar progressBarView
		Expect(json.Unmarshal([]byte(body), &bar)).To(Succeed())
		Expect(bar.Completed).To(BeTrue())
	})

	It("should report unknown progress bars as not found", func() {
		code, _ := get("/api/progress/nobody")
		Expect(code).To(Equal(http.StatusNotFound))
	})

	It("should report a missing configuration as not found", func() {
		code, _ := get("/api/config")
		Expect(code).To(Equal(http.StatusNotFound))
	})

	It("should ignore hook items of the wrong type", func() {
		Expect(func() {
			m.Func(hooking.HookCtx{Pos: actor.HookPosWorkerProgress, Item: 3})
			m.Func(hooking.HookCtx{Pos: actor.HookPosActorStopped, Item: "x"})
			m.Func(hooking.HookCtx{Pos: actor.HookPosProducerSummary})
		}).NotTo(Panic())
	})

	It("should export the shared counters and actor statistics", func() {
		g, _ := state.Acquire(sharedstate.Blocking)
		g.RecordInterrupt(7)
		g.Release()

		m.Func(hooking.HookCtx{
			Pos: actor.HookPosActorStopped,
			Item: actor.Final{
				Name:  "irq",
				Kind:  actor.KindInterrupt,
				Stats: latency.Stats{Samples: 1, LockFailures: 3},
			},
		})

		code, body := get("/metrics")
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring("locktel_shared_irq_count 1"))
		Expect(body).To(ContainSubstring(
			`locktel_actor_lock_failures{actor="irq",kind="interrupt"} 3`))
	})

	It("should fall back to a random port for reserved ports", func() {
		m.WithPortNumber(80)
		Expect(m.portNumber).To(Equal(0))
	})
})
