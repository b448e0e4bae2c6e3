// Package scheduler implements the core's millisecond timer wheel used
// for timeouts and recurring events (spec.md C12), notably deferred
// WebSocket sends.
//
// Unlike the original single-threaded net11, this module runs one
// goroutine per connection (the idiomatic Go rendition of its "single
// logical execution stream" per connection), so a WebSocket handler
// goroutine may register a timeout while the scheduler's own Poll is
// running on another goroutine. Scheduler therefore guards its ordered
// event set with a mutex; see DESIGN.md's Open Questions for why this is
// a deliberate, documented deviation rather than a silent one.
package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// event is either one-shot (once set) or recurring (period > 0, recur
// set). Recurring events are re-inserted at prevDeadline+period as long as
// recur returns true.
type event struct {
	deadline int64 // unix millis
	period   int64 // 0 for one-shot
	once     func()
	recur    func() bool
	index    int // heap.Interface bookkeeping
}

type eventHeap []*event

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *eventHeap) Push(x interface{}) {
	e := x.(*event)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Scheduler is an ordered multimap from absolute millisecond deadline to
// event, polled cooperatively by calling Poll.
type Scheduler struct {
	mu    sync.Mutex
	heap  eventHeap
	clock func() time.Time
}

// New constructs an empty Scheduler using the wall clock, matching the
// original's current_time_millis() wall-clock time source (§4.9/§9 flags
// monotonic time as an open question; this keeps wall-clock deliberately).
func New() *Scheduler {
	return &Scheduler{clock: time.Now}
}

func (s *Scheduler) nowMillis() int64 {
	return s.clock().UnixMilli()
}

// Timeout schedules f to run once after delay has elapsed.
func (s *Scheduler) Timeout(delay time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.heap, &event{
		deadline: s.nowMillis() + delay.Milliseconds(),
		once:     f,
	})
}

// Interval schedules f to run after delay has elapsed, then every period
// thereafter for as long as f returns true. Recurring entries are not
// individually cancellable; gate with an externally held flag if you need
// to stop one.
func (s *Scheduler) Interval(delay, period time.Duration, f func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.heap, &event{
		deadline: s.nowMillis() + delay.Milliseconds(),
		period:   period.Milliseconds(),
		recur:    f,
	})
}

// Poll fires every event whose deadline has passed. One-shot events run
// once and are discarded; recurring events whose predicate returns true
// are re-inserted at prevDeadline+period.
func (s *Scheduler) Poll() {
	now := s.nowMillis()
	for {
		s.mu.Lock()
		if len(s.heap) == 0 || s.heap[0].deadline > now {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.heap).(*event)
		s.mu.Unlock()

		if e.period != 0 {
			if e.recur() {
				s.mu.Lock()
				heap.Push(&s.heap, &event{deadline: e.deadline + e.period, period: e.period, recur: e.recur})
				s.mu.Unlock()
			}
		} else {
			e.once()
		}
	}
}

// Len reports the number of pending events, for tests and diagnostics.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}
