package threads

import (
	"fmt"
	"sync"
)

// Cond is a Mesa-style condition variable bound to a Lock (spec §4.1).
// Wait requires the lock held: it enqueues a fresh per-waiter semaphore,
// releases the lock, blocks on that semaphore, then re-acquires the lock
// on wake. Because this is Mesa (not Hoare) semantics, a woken waiter
// must re-test its predicate after Wait returns.
type Cond struct {
	sched *Scheduler
	lock  *Lock

	mu      sync.Mutex
	waiters []*Semaphore
}

// NewCond constructs a condition variable bound to lock.
func NewCond(sched *Scheduler, lock *Lock) *Cond {
	return &Cond{sched: sched, lock: lock}
}

func (c *Cond) assertHeld(self *Thread, op string) {
	if !c.lock.IsHeldBy(self) {
		panic(fmt.Sprintf("Cond.%s: lock must be held", op))
	}
}

// Wait releases the bound lock, blocks until Signal or Broadcast wakes
// this waiter, then re-acquires the lock before returning.
func (c *Cond) Wait(self *Thread) {
	c.assertHeld(self, "Wait")
	sem := NewSemaphore(c.sched, 0)
	c.mu.Lock()
	c.waiters = append(c.waiters, sem)
	c.mu.Unlock()

	c.lock.Release(self)
	sem.P(self)
	c.lock.Acquire(self)
}

// Signal wakes the head waiter (FIFO), a no-op if none are waiting.
func (c *Cond) Signal(self *Thread) {
	c.assertHeld(self, "Signal")
	c.mu.Lock()
	if len(c.waiters) == 0 {
		c.mu.Unlock()
		return
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	c.mu.Unlock()
	w.V()
}

// Broadcast wakes every waiter present at the moment Broadcast is
// called (spec §9 Open Question: "treat the intended semantics as
// 'signal every waiter present at entry'" — a waiter that arrives after
// this snapshot is taken is left for a later Signal/Broadcast).
func (c *Cond) Broadcast(self *Thread) {
	c.assertHeld(self, "Broadcast")
	c.mu.Lock()
	toWake := c.waiters
	c.waiters = nil
	c.mu.Unlock()
	for _, w := range toWake {
		w.V()
	}
}

// NumWaiters reports how many threads are currently waiting, for tests.
func (c *Cond) NumWaiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
