package threads

import "sync"

// Semaphore holds a non-negative counter and a FIFO waiter queue (spec.md
// §4.1). P and V never fail. Grounded in original_source/threads's
// semaphore semantics. The critical region that NachOS brackets with
// interrupts-off is instead protected here by sem.mu, which stays held
// across "enqueue the waiter" and "mark it Blocked" so a concurrent V
// can never observe the waiter mid-transition (see package doc in
// scheduler.go).
//
// Every operation that needs to know "who is calling" takes the caller's
// *Thread explicitly as self, rather than consulting a shared
// Scheduler.Current(): under real host concurrency many goroutines call
// into these primitives at once, and NachOS's implicit single
// currentThread global has no safe equivalent here.
type Semaphore struct {
	mu      sync.Mutex
	count   int
	waiters []*Thread
	sched   *Scheduler
}

// NewSemaphore constructs a semaphore with the given initial count.
func NewSemaphore(sched *Scheduler, initial int) *Semaphore {
	if initial < 0 {
		panic("semaphore: negative initial count")
	}
	return &Semaphore{sched: sched, count: initial}
}

// P decrements the counter if positive; otherwise it suspends self on
// the FIFO waiter queue until a matching V.
func (sem *Semaphore) P(self *Thread) {
	sem.mu.Lock()
	if sem.count > 0 {
		sem.count--
		sem.mu.Unlock()
		return
	}
	self.markBlocked()
	sem.waiters = append(sem.waiters, self)
	sem.mu.Unlock()

	self.parkUntilWoken()
}

// V wakes the head waiter (FIFO), or increments the counter if the queue
// is empty.
func (sem *Semaphore) V() {
	sem.mu.Lock()
	if len(sem.waiters) == 0 {
		sem.count++
		sem.mu.Unlock()
		return
	}
	w := sem.waiters[0]
	sem.waiters = sem.waiters[1:]
	sem.mu.Unlock()

	w.wakeReady()
}

// Count returns the current counter value, for tests and debugging.
func (sem *Semaphore) Count() int {
	sem.mu.Lock()
	defer sem.mu.Unlock()
	return sem.count
}

// NumWaiters reports the FIFO waiter queue length, for tests.
func (sem *Semaphore) NumWaiters() int {
	sem.mu.Lock()
	defer sem.mu.Unlock()
	return len(sem.waiters)
}
