package actor

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/locktel/hooking"
	"github.com/sarchlab/locktel/sharedstate"
)

var _ = Describe("WorkerPool", func() {
	var (
		state   *sharedstate.State
		builder Builder
	)

	BeforeEach(func() {
		state = sharedstate.New()
		builder = MakeBuilder().WithState(state)
	})

	It("should reject invalid settings", func() {
		_, err := builder.WithNumWorkers(0).BuildWorkerPool("pool")
		Expect(err).To(MatchError(ErrInvalidSetting))

		_, err = builder.WithIterations(0).BuildWorkerPool("pool")
		Expect(err).To(MatchError(ErrInvalidSetting))

		_, err = MakeBuilder().BuildWorkerPool("pool")
		Expect(err).To(MatchError(ErrNoSharedState))
	})

	It("should count every iteration under the blocking policy", func() {
		pool, err := builder.
			WithNumWorkers(2).
			WithIterations(10000).
			BuildWorkerPool("pool")
		Expect(err).NotTo(HaveOccurred())

		handles, err := pool.Start(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(handles).To(HaveLen(2))

		finals := pool.Join()

		Expect(state.Snapshot().WorkerCounter).To(Equal(uint64(20000)))
		for _, f := range finals {
			Expect(f.Kind).To(Equal(KindWorker))
			Expect(f.Iterations).To(Equal(uint64(10000)))
			Expect(f.Stats.Samples).To(Equal(uint64(10000)))
			Expect(f.Stats.LockFailures).To(BeZero())
			Expect(f.Cancelled).To(BeFalse())
		}
	})

	It("should record a failure for every contended best-effort iteration", func() {
		pool, _ := builder.
			WithNumWorkers(2).
			WithIterations(100).
			WithPolicy(sharedstate.BestEffort).
			BuildWorkerPool("pool")

		holder, _ := state.Acquire(sharedstate.Blocking)
		_, err := pool.Start(context.Background())
		Expect(err).NotTo(HaveOccurred())

		finals := pool.Join()
		holder.Release()

		Expect(state.Snapshot().WorkerCounter).To(BeZero())
		for _, f := range finals {
			Expect(f.Stats.LockFailures).To(Equal(uint64(100)))
			Expect(f.Stats.Samples).To(BeZero())
			Expect(f.Stats.AverageNs()).To(BeZero())
		}
	})

	It("should finish the current iteration when stopped", func() {
		pool, _ := builder.
			WithNumWorkers(2).
			WithIterations(1000000).
			BuildWorkerPool("pool")

		holder, _ := state.Acquire(sharedstate.Blocking)
		_, err := pool.Start(context.Background())
		Expect(err).NotTo(HaveOccurred())

		pool.Stop()
		holder.Release()

		finals := pool.Join()

		Expect(state.Snapshot().WorkerCounter).To(BeNumerically("<=", 2))
		var applied uint64
		for _, f := range finals {
			Expect(f.Cancelled).To(BeTrue())
			Expect(f.Iterations).To(BeNumerically("<=", 1))
			applied += f.Stats.Samples
		}
		Expect(state.Snapshot().WorkerCounter).To(Equal(applied))
	})

	It("should keep worker statistics until the workers stop", func() {
		pool, _ := builder.
			WithNumWorkers(2).
			WithIterations(1 << 40).
			BuildWorkerPool("pool")

		handles, err := pool.Start(context.Background())
		Expect(err).NotTo(HaveOccurred())

		for _, h := range handles {
			Consistently(h.Done(), 20*time.Millisecond).ShouldNot(BeClosed())
		}
		Consistently(pool.Done(), 10*time.Millisecond).ShouldNot(BeClosed())

		pool.Stop()
		finals := pool.Join()

		var applied uint64
		for i, h := range handles {
			Expect(h.Done()).To(BeClosed())
			Expect(h.Join()).To(Equal(finals[i]))
			Expect(finals[i].Cancelled).To(BeTrue())
			applied += finals[i].Stats.Samples
		}
		Expect(state.Snapshot().WorkerCounter).To(Equal(applied))
	})

	It("should stop when its context is cancelled", func() {
		pool, _ := builder.WithIterations(1000000).BuildWorkerPool("pool")

		ctx, cancel := context.WithCancel(context.Background())
		_, err := pool.Start(ctx)
		Expect(err).NotTo(HaveOccurred())
		cancel()

		Eventually(pool.Done()).Should(BeClosed())
		for _, f := range pool.Join() {
			Expect(f.Cancelled).To(BeTrue())
		}
	})

	It("should not start twice", func() {
		pool, _ := builder.WithIterations(10).BuildWorkerPool("pool")

		_, err := pool.Start(context.Background())
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Start(context.Background())
		Expect(err).To(MatchError(ErrAlreadyStarted))

		pool.Join()
	})

	It("should return nothing when joined before starting", func() {
		pool, _ := builder.BuildWorkerPool("pool")

		Expect(pool.Join()).To(BeNil())
	})

	It("should report progress and stops through hooks", func() {
		pool, _ := builder.
			WithNumWorkers(2).
			WithIterations(10).
			WithYieldEvery(4).
			BuildWorkerPool("pool")

		var (
			lock     sync.Mutex
			progress = map[string]uint64{}
			stopped  []string
		)
		pool.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			lock.Lock()
			defer lock.Unlock()

			switch ctx.Pos {
			case HookPosWorkerProgress:
				p := ctx.Item.(Progress)
				progress[p.Actor] = p.Done
				Expect(p.Total).To(Equal(uint64(10)))
			case HookPosActorStopped:
				stopped = append(stopped, ctx.Item.(Final).Name)
			}
		}))

		_, err := pool.Start(context.Background())
		Expect(err).NotTo(HaveOccurred())
		pool.Join()

		Expect(stopped).To(ConsistOf(pool.WorkerName(1), pool.WorkerName(2)))
		Expect(progress).To(HaveKeyWithValue(pool.WorkerName(1), uint64(10)))
		Expect(progress).To(HaveKeyWithValue(pool.WorkerName(2), uint64(10)))
	})
})
