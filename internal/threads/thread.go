package threads

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/klog"
)

// Status is a thread's scheduling state (spec.md §3 Thread data model).
type Status int

const (
	JustCreated Status = iota
	Ready
	Running
	Blocked
	Finished
)

func (s Status) String() string {
	switch s {
	case JustCreated:
		return "just-created"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Finished:
		return "finished"
	default:
		return "?"
	}
}

// Thread is a kernel thread control block (spec.md §3). AddrSpace and
// OpenFiles are stored opaquely (as `any`) because the scheduler/thread
// layer must not import the memory or file-system layers above it (spec
// §2: "Each [layer] depends only on those below it"); internal/vm and
// internal/fs populate and type-assert them.
type Thread struct {
	mu       sync.Mutex
	sched    *Scheduler
	id       int
	name     string
	status   Status
	priority int

	joinable bool
	joinCh   *Channel

	space      common.SpaceId
	addrSpace  any
	openFiles  any
	faultCount uint64

	parkCh chan struct{}
}

func (s *Scheduler) newThread(name string, priority int, joinable bool) *Thread {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()
	t := &Thread{
		sched:    s,
		id:       id,
		name:     name,
		status:   JustCreated,
		priority: priority,
		joinable: joinable,
		space:    common.NoSpace,
		parkCh:   make(chan struct{}, 1),
	}
	if joinable {
		t.joinCh = NewChannel(s)
	}
	return t
}

// wake delivers one wakeup token to t; idempotent if t already has an
// undelivered token buffered.
func (t *Thread) wake() {
	select {
	case t.parkCh <- struct{}{}:
	default:
	}
}

// parkSelf blocks the calling goroutine until wake is called.
func (t *Thread) parkSelf() {
	<-t.parkCh
}

func (t *Thread) setStatus(st Status) {
	t.mu.Lock()
	t.status = st
	t.mu.Unlock()
}

// Status returns the thread's current scheduling state.
func (t *Thread) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ID returns the thread's scheduler-assigned identifier (distinct from
// its SpaceId, which is only assigned to threads owning a user program).
func (t *Thread) ID() int { return t.id }

// Name returns the thread's debugging name.
func (t *Thread) Name() string { return t.name }

// Priority returns the thread's current effective (possibly donated)
// priority.
func (t *Thread) Priority() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

// SetPriority sets the thread's priority directly, independent of any
// donation bookkeeping a Lock may be tracking. Supplemented from
// original_source/threads/system.hh's Thread::SetPriority/GetPriority
// accessors, which the distilled spec omitted.
func (t *Thread) SetPriority(p int) {
	t.mu.Lock()
	t.priority = p
	t.mu.Unlock()
	t.sched.requeue(t)
}

// SpaceId returns the thread's process identifier, or common.NoSpace if
// it does not own a user program.
func (t *Thread) SpaceId() common.SpaceId {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.space
}

// SetSpaceId assigns a SpaceId at thread creation (spec glossary).
func (t *Thread) SetSpaceId(id common.SpaceId) {
	t.mu.Lock()
	t.space = id
	t.mu.Unlock()
}

// AddrSpace returns the thread's owned address space, or nil.
func (t *Thread) AddrSpace() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addrSpace
}

// SetAddrSpace attaches an address space to the thread (set by the Exec
// syscall handler in internal/trap, spec §3 "Lifecycles").
func (t *Thread) SetAddrSpace(as any) {
	t.mu.Lock()
	t.addrSpace = as
	t.mu.Unlock()
}

// OpenFiles returns the thread's per-process open-file table, or nil.
func (t *Thread) OpenFiles() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openFiles
}

// SetOpenFiles attaches a per-process open-file table.
func (t *Thread) SetOpenFiles(f any) {
	t.mu.Lock()
	t.openFiles = f
	t.mu.Unlock()
}

// IncFaultCount bumps and returns the thread's page-fault counter, used
// by internal/vm to round-robin the TLB victim slot (spec §4.3: "choose
// a victim TLB slot via round-robin on the per-thread fault counter").
func (t *Thread) IncFaultCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faultCount++
	return t.faultCount
}

// Joinable reports whether a later Join on this thread is valid.
func (t *Thread) Joinable() bool { return t.joinable }

// Fork allocates a new kernel thread and runs entry on its own goroutine,
// returning immediately (spec §4.2). The goroutine calls Finish
// automatically once entry returns, matching the spec's trampoline step
// (iii): "enables interrupts, calls entry(arg), calls Finish."
func (s *Scheduler) Fork(name string, priority int, joinable bool, entry func(t *Thread)) *Thread {
	t := s.newThread(name, priority, joinable)

	s.mu.Lock()
	s.pushReady(t)
	s.mu.Unlock()

	go func() {
		s.mu.Lock()
		s.removeFromLevels(t)
		t.setStatus(Running)
		s.current = t
		s.mu.Unlock()

		klog.Debugf(klog.Thread, "sched", "%s running", t.name)
		entry(t)
		t.Finish(0)
	}()

	return t
}

// Yield cooperatively gives other runnable threads a chance to proceed.
// Under real host concurrency every other goroutine is already runnable
// independent of this call; Yield still honors spec §4.2's contract
// (return once rescheduled) by calling runtime.Gosched() so a thread
// that spins waiting for another thread's progress cannot starve it.
func (t *Thread) Yield() {
	klog.Debugf(klog.Thread, "sched", "%s yielding", t.name)
	runtime.Gosched()
}

// Sleep blocks the calling thread until something wakes it (spec §4.2).
// spinIdle controls whether, in the absence of any other runnable
// thread, the caller busy-waits a few scheduler quanta before truly
// parking — standing in for the original's choice between halting the
// simulated CPU and spinning to poll the console device (spec §4.2, §6).
func (t *Thread) Sleep(spinIdle bool) {
	if spinIdle {
		for i := 0; i < 16 && t.sched.NumReady() == 0; i++ {
			runtime.Gosched()
		}
	}
	klog.Debugf(klog.Thread, "sched", "%s sleeping (spinIdle=%v)", t.name, spinIdle)
	t.block()
}

// markBlocked marks t Blocked without yet parking its goroutine. Callers
// that must enqueue t on a waiter list before releasing their own mutex
// (Semaphore.P, through which Cond.Wait and Channel.Send/Receive also
// block) call this first, so a
// concurrent waker can never observe t mid-transition.
func (t *Thread) markBlocked() {
	t.setStatus(Blocked)
}

// parkUntilWoken blocks the calling goroutine until wake is called, then
// marks t Running again. Every suspension point in spec §5 funnels
// through markBlocked followed by parkUntilWoken.
func (t *Thread) parkUntilWoken() {
	t.parkSelf()
	t.setStatus(Running)
	t.sched.setCurrent(t)
}

// block is markBlocked immediately followed by parkUntilWoken, for
// callers (Thread.Sleep) that need no intervening enqueue step.
func (t *Thread) block() {
	t.markBlocked()
	t.parkUntilWoken()
}

// wakeReady marks a Blocked thread Ready and delivers its wakeup token.
// Used by V()/Signal()/Broadcast()/Send()/Receive to wake a waiter.
func (t *Thread) wakeReady() {
	t.setStatus(Ready)
	t.wake()
}

// Finish records self as the thread-to-destroy, publishes status on the
// join channel if joinable, and never returns — modeling spec §4.2's
// uninhabited-return-type requirement for Finish/machine->Run (spec §9,
// "Exception-like control flow").
func (t *Thread) Finish(status int) {
	klog.Debugf(klog.Thread, "sched", "%s finishing with status %d", t.name, status)
	if t.joinable {
		t.joinCh.Send(t, status)
	}
	t.setStatus(Finished)
	t.sched.retire(t)
	runtime.Goexit()
}

func (s *Scheduler) retire(t *Thread) {
	s.mu.Lock()
	s.retiring = t
	if s.current == t {
		s.current = nil
	}
	s.mu.Unlock()
}

// Join blocks self until the joinable thread target finishes, returning
// its exit status. Asserts the target was created joinable (spec §4.2).
func (s *Scheduler) Join(self *Thread, target *Thread) int {
	if !target.joinable {
		panic(fmt.Sprintf("Join: thread %q was not created joinable", target.name))
	}
	return target.joinCh.Receive(self)
}
