package threads

import (
	"fmt"
	"sync"
)

// noDonation marks that a Lock has not donated its holder's priority.
// Priorities are small non-negative integers (spec §3), so -1 is unused.
const noDonation = -1

// Lock is a mutex built on a binary Semaphore, with priority donation
// when the scheduler uses a multi-level ready queue (spec §4.1). Every
// operation takes the caller's *Thread explicitly as self; see the
// Semaphore type's doc in semaphore.go for why.
type Lock struct {
	sched *Scheduler
	sem   *Semaphore

	mu            sync.Mutex
	holder        *Thread
	savedPriority int // priority the holder had before this lock donated to it
}

// NewLock constructs an unheld lock.
func NewLock(sched *Scheduler) *Lock {
	return &Lock{sched: sched, sem: NewSemaphore(sched, 1), savedPriority: noDonation}
}

// IsHeldBy reports whether self holds l.
func (l *Lock) IsHeldBy(self *Thread) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder == self
}

// Acquire asserts self does not already hold l, donates priority to the
// current holder if self's priority is higher (spec §4.1), then blocks
// until l is free and records self as holder.
func (l *Lock) Acquire(self *Thread) {
	if l.IsHeldBy(self) {
		panic(fmt.Sprintf("Lock.Acquire: thread %q already holds this lock", self.Name()))
	}

	l.mu.Lock()
	holder := l.holder
	if holder != nil && l.sched.cfg.MultiLevelQueue && holder.Priority() < self.Priority() {
		if l.savedPriority == noDonation {
			l.savedPriority = holder.Priority()
		}
		holder.SetPriority(self.Priority())
	}
	l.mu.Unlock()

	l.sem.P(self)

	l.mu.Lock()
	l.holder = self
	l.mu.Unlock()
}

// Release asserts self holds l, clears the holder, restores any priority
// donated to self for this critical section, then signals the semaphore.
func (l *Lock) Release(self *Thread) {
	l.mu.Lock()
	if l.holder != self {
		l.mu.Unlock()
		panic(fmt.Sprintf("Lock.Release: thread %q does not hold this lock", self.Name()))
	}
	l.holder = nil
	restore := l.savedPriority
	l.savedPriority = noDonation
	l.mu.Unlock()

	if restore != noDonation {
		self.SetPriority(restore)
	}
	l.sem.V()
}
