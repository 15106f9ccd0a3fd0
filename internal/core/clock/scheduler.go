// Package clock drives cooperative, single-goroutine scheduling on top of the
// fixed physics step. Nothing here sleeps: time only moves when Step is called.
package clock

import (
	"container/heap"
	"time"
)

// Timer is a callback scheduled with After.
type Timer struct {
	deadline time.Duration
	seq      uint64
	fn       func()
	index    int
	stopped  bool
}

// Stop cancels the timer. It reports false when the timer already fired or
// was stopped before.
func (t *Timer) Stop() bool {
	if t == nil || t.stopped || t.index < 0 {
		return false
	}
	t.stopped = true
	return true
}

// Deadline is the scheduler time at which the timer becomes due.
func (t *Timer) Deadline() time.Duration {
	return t.deadline
}

// Scheduler is not safe for concurrent use; it belongs to the logic goroutine
// of one peer.
type Scheduler struct {
	step  time.Duration
	now   time.Duration
	ticks uint64
	seq   uint64

	timers   timerHeap
	nextStep []func()
}

func New(fixedStep time.Duration) *Scheduler {
	if fixedStep <= 0 {
		fixedStep = time.Second / 50
	}
	return &Scheduler{step: fixedStep}
}

// FromRate returns a scheduler stepping at hz fixed steps per second.
func FromRate(hz int) *Scheduler {
	if hz <= 0 {
		return New(0)
	}
	return New(time.Second / time.Duration(hz))
}

// Now is the simulated time elapsed since the scheduler was created.
func (s *Scheduler) Now() time.Duration { return s.now }

// FixedStep is the duration of one physics step.
func (s *Scheduler) FixedStep() time.Duration { return s.step }

// Ticks counts completed fixed steps.
func (s *Scheduler) Ticks() uint64 { return s.ticks }

// After runs fn on the first Step at which d has fully elapsed. It never runs
// early and never later than one fixed step past the deadline.
func (s *Scheduler) After(d time.Duration, fn func()) *Timer {
	s.seq++
	t := &Timer{
		deadline: s.now + d,
		seq:      s.seq,
		fn:       fn,
	}
	heap.Push(&s.timers, t)
	return t
}

// NextFixedStep runs fn at the start of the next physics step.
func (s *Scheduler) NextFixedStep(fn func()) {
	s.nextStep = append(s.nextStep, fn)
}

// Pending reports the number of live timers and queued step callbacks.
func (s *Scheduler) Pending() int {
	live := 0
	for _, t := range s.timers {
		if !t.stopped {
			live++
		}
	}
	return live + len(s.nextStep)
}

// Step advances time by one fixed step, then runs callbacks queued for this
// step followed by every timer that became due, in deadline order.
func (s *Scheduler) Step() {
	s.now += s.step
	s.ticks++

	queued := s.nextStep
	s.nextStep = nil
	for _, fn := range queued {
		fn()
	}

	for s.timers.Len() > 0 && s.timers[0].deadline <= s.now {
		t := heap.Pop(&s.timers).(*Timer)
		if t.stopped {
			continue
		}
		t.fn()
	}
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline == h[j].deadline {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline < h[j].deadline
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
