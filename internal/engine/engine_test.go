package engine

import (
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("EventQueue", func() {
	It("should pop in time order", func() {
		queue := NewEventQueue()
		rng := rand.New(rand.NewSource(1))
		for i := 0; i < 100; i++ {
			queue.Enqueue(VTime(rng.Float64()*100), func() {})
		}

		now := VTime(-1)
		for !queue.IsEmpty() {
			evt := queue.Dequeue()
			Expect(evt.Time() >= now).To(BeTrue())
			now = evt.Time()
		}
	})

	It("should keep registration order for equal times", func() {
		queue := NewEventQueue()
		var got []int
		for i := 0; i < 10; i++ {
			i := i
			queue.Enqueue(5, func() { got = append(got, i) })
		}
		for !queue.IsEmpty() {
			queue.Dequeue().fn()
		}
		Expect(got).To(Equal([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}))
	})

	It("should remove a queued event", func() {
		queue := NewEventQueue()
		a := queue.Enqueue(1, func() {})
		b := queue.Enqueue(2, func() {})
		Expect(queue.Remove(a)).To(BeTrue())
		Expect(queue.Remove(a)).To(BeFalse())
		Expect(queue.Peek()).To(BeIdenticalTo(b))
	})
})

var _ = Describe("Engine", func() {
	var e *Engine

	BeforeEach(func() {
		e = New()
	})

	It("should advance the clock to each event", func() {
		var seen []VTime
		for _, d := range []VTime{3, 1, 2} {
			_, err := e.Schedule(d, func() { seen = append(seen, e.Now()) })
			Expect(err).NotTo(HaveOccurred())
		}
		e.Run()
		Expect(seen).To(Equal([]VTime{1, 2, 3}))
		Expect(e.Now()).To(Equal(VTime(3)))
		Expect(e.Processed()).To(Equal(uint64(3)))
	})

	It("should reject negative and NaN delays", func() {
		_, err := e.Schedule(-1, func() {})
		Expect(err).To(MatchError(ErrNegativeDelay))
		_, err = e.Schedule(VTime(math.NaN()), func() {})
		Expect(err).To(MatchError(ErrInvalidDelay))
		Expect(e.Pending()).To(Equal(0))
	})

	It("should run zero-delay continuations after the current instant's queue", func() {
		var order []string
		_, _ = e.Schedule(1, func() {
			order = append(order, "a")
			_, _ = e.Schedule(0, func() { order = append(order, "a0") })
		})
		_, _ = e.Schedule(1, func() { order = append(order, "b") })
		_, _ = e.Schedule(2, func() { order = append(order, "c") })

		Expect(e.Advance()).To(BeTrue())
		Expect(order).To(Equal([]string{"a", "b", "a0"}))
		Expect(e.Now()).To(Equal(VTime(1)))

		Expect(e.Advance()).To(BeTrue())
		Expect(e.Advance()).To(BeFalse())
		Expect(order).To(Equal([]string{"a", "b", "a0", "c"}))
	})

	It("should not run cancelled events", func() {
		ran := false
		evt, err := e.Schedule(1, func() { ran = true })
		Expect(err).NotTo(HaveOccurred())
		e.Cancel(evt)
		e.Cancel(evt)
		e.Run()
		Expect(ran).To(BeFalse())
		Expect(evt.Pending()).To(BeFalse())
	})

	It("should stop at the horizon in RunUntil", func() {
		count := 0
		for _, d := range []VTime{1, 5, 10} {
			_, _ = e.Schedule(d, func() { count++ })
		}
		e.RunUntil(5)
		Expect(count).To(Equal(2))
		Expect(e.Now()).To(Equal(VTime(5)))
		Expect(e.Pending()).To(Equal(1))

		e.RunUntil(7)
		Expect(e.Now()).To(Equal(VTime(7)))
		Expect(count).To(Equal(2))
	})

	It("should panic when scheduling into the past", func() {
		_, _ = e.Schedule(2, func() {})
		e.Run()
		Expect(func() { e.ScheduleAt(1, func() {}) }).To(Panic())
	})

	It("should invoke hooks around every event", func() {
		var positions []string
		e.AcceptHook(HookFunc(func(ctx HookCtx) {
			positions = append(positions, ctx.Pos.Name)
		}))
		_, _ = e.Schedule(1, func() {})
		e.Run()
		Expect(positions).To(Equal([]string{"BeforeEvent", "AfterEvent"}))
	})
})

var _ = Describe("Signal", func() {
	It("should resume waiters in FIFO order when fired", func() {
		e := New()
		s := e.NewSignal("charged")
		var got []int
		for i := 0; i < 3; i++ {
			i := i
			s.Wait(func() { got = append(got, i) })
		}
		Expect(s.Waiting()).To(Equal(3))

		_, _ = e.Schedule(4, func() { Expect(s.Fire()).To(Equal(3)) })
		e.Run()

		Expect(got).To(Equal([]int{0, 1, 2}))
		Expect(s.Waiting()).To(Equal(0))
		Expect(e.Now()).To(Equal(VTime(4)))
	})

	It("should be reusable", func() {
		e := New()
		s := e.NewSignal("slot")
		fired := 0
		s.Wait(func() {
			fired++
			s.Wait(func() { fired++ })
		})
		_, _ = e.Schedule(1, func() { s.Fire() })
		_, _ = e.Schedule(2, func() { s.Fire() })
		e.Run()
		Expect(fired).To(Equal(2))
	})
})
