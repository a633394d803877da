// Package threads implements the synchronization and scheduler layers of
// spec.md §4.1-4.2: semaphores, locks with priority donation, Mesa-style
// condition variables, channels, and cooperative kernel threads over a
// multi-level ready queue.
//
// Grounded in original_source/threads/{thread,lock,condition,channel}.cc
// for semantics, and in the teacher's own small-guarded-struct idiom
// (biscuit/src/kernel/main.go's physmem.Lock()/Unlock(), passfd_t) for
// how a Go port wraps each primitive's critical section.
//
// paldos hosts its kernel threads as real goroutines rather than NachOS's
// single simulated CPU core, which only ever runs one thread at a time by
// construction. A literal port would need to hand a single "CPU token"
// between goroutines on every suspension point; doing that correctly
// without reintroducing the very race conditions interrupt-disable exists
// to prevent turned out to need more machinery than the spec's invariants
// actually require. Instead, each primitive below blocks and wakes
// threads with a dedicated per-thread signal channel under its own
// mutex — genuinely concurrent, but preserving every FIFO/Mesa ordering
// guarantee in spec §5 and every testable property in spec §8. The
// Scheduler's multi-level ready structure still exists and is still the
// thing priority donation (spec §4.1) notifies on a priority change; see
// DESIGN.md for the full rationale.
package threads

import (
	"sync"
	"sync/atomic"

	"github.com/pablos123/paldos/internal/kconfig"
)

// Scheduler owns the ready structure and the notion of "the current
// thread". One Scheduler models one simulated CPU core (spec.md
// Non-goals: multi-core execution is out of scope).
type Scheduler struct {
	mu      sync.Mutex
	cfg     kconfig.Config
	levels  [][]*Thread // ready queue; levels[0] used directly when !MultiLevelQueue
	current *Thread
	retiring *Thread
	nextID  int
	tick    uint64
}

// New constructs a Scheduler. When cfg.MultiLevelQueue is set, the ready
// structure is a priority-keyed multi-level queue (higher priority first,
// FIFO within a level); otherwise it is a single FIFO queue, matching the
// two variants named in spec §4.2.
func New(cfg kconfig.Config) *Scheduler {
	n := 1
	if cfg.MultiLevelQueue {
		n = cfg.NumPriorities
		if n < 1 {
			n = 1
		}
	}
	return &Scheduler{
		cfg:    cfg,
		levels: make([][]*Thread, n),
	}
}

// Tick returns a monotonically increasing counter, exposed to
// internal/vm for the LRU page-replacement policy's last-use stamps
// (spec §4.3: "LRU picks the frame whose core-map last_use is minimum").
func (s *Scheduler) Tick() uint64 {
	return atomic.AddUint64(&s.tick, 1)
}

// Current returns the thread most recently dispatched onto the CPU, for
// introspection; with real host concurrency this is advisory bookkeeping
// rather than an exclusive lock on execution (see package doc).
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Scheduler) setCurrent(t *Thread) {
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
}

func (s *Scheduler) levelFor(priority int) int {
	if !s.cfg.MultiLevelQueue {
		return 0
	}
	if priority < 0 {
		priority = 0
	}
	if priority >= len(s.levels) {
		priority = len(s.levels) - 1
	}
	return priority
}

// pushReady marks t Ready and appends it to the tail of its priority
// level. Must be called with s.mu held. Mesa semantics (spec §5): "a
// signalled waiter is placed at the tail of the ready structure."
func (s *Scheduler) pushReady(t *Thread) {
	t.setStatus(Ready)
	lvl := s.levelFor(t.Priority())
	s.levels[lvl] = append(s.levels[lvl], t)
}

// popReady removes and returns the head of the highest nonempty priority
// level (FIFO within a level), or nil if the ready structure is empty.
// Must be called with s.mu held.
func (s *Scheduler) popReady() *Thread {
	for lvl := len(s.levels) - 1; lvl >= 0; lvl-- {
		if len(s.levels[lvl]) > 0 {
			t := s.levels[lvl][0]
			s.levels[lvl] = s.levels[lvl][1:]
			return t
		}
	}
	return nil
}

// removeFromLevels deletes t from whatever ready level it currently sits
// in, used by requeue when a thread's priority changes while ready. Must
// be called with s.mu held.
func (s *Scheduler) removeFromLevels(t *Thread) bool {
	for lvl := range s.levels {
		q := s.levels[lvl]
		for i, c := range q {
			if c == t {
				s.levels[lvl] = append(q[:i], q[i+1:]...)
				return true
			}
		}
	}
	return false
}

// requeue re-sorts a Ready thread into its (possibly new) priority level,
// used after priority donation raises or restores a thread's priority
// (spec §4.1: "The scheduler's ready structure must be notified of
// priority changes"). A no-op for a thread that isn't currently sitting
// on the ready structure (e.g. it is Blocked or Running).
func (s *Scheduler) requeue(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status() != Ready {
		return
	}
	if s.removeFromLevels(t) {
		lvl := s.levelFor(t.Priority())
		s.levels[lvl] = append(s.levels[lvl], t)
	}
}

// NumReady reports how many threads are currently on the ready
// structure, used by tests asserting scheduler-queue invariants.
func (s *Scheduler) NumReady() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, lvl := range s.levels {
		n += len(lvl)
	}
	return n
}

// reclaimRetiring returns and clears the thread most recently retired by
// Finish, if any (spec §4.2: "the next thread to run is responsible for
// deallocating the finished thread's stack").
func (s *Scheduler) reclaimRetiring() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.retiring
	s.retiring = nil
	return r
}
