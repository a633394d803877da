// Package console implements spec.md §6's console device: character
// input/output wrapped in a synchronous API over read-available and
// write-done interrupts, grounded in original_source/machine/console.cc
// (via _INDEX.md) and the teacher's package-per-hardware-boundary
// layout (main.go's `cons` package-level value).
package console

import (
	"io"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/klog"
	"github.com/pablos123/paldos/internal/threads"
)

// SynchConsole wraps a byte-stream in and out with the two-semaphore,
// two-lock structure spec §6 calls for: readLock/writeLock make readers
// mutually exclusive among themselves and writers mutually exclusive
// among themselves, while a read and a write may still proceed
// concurrently with each other.
type SynchConsole struct {
	in  io.Reader
	out io.Writer

	readLock  *threads.Lock
	writeLock *threads.Lock
	readAvail *threads.Semaphore
	writeDone *threads.Semaphore

	lastErr error
}

// New wraps in/out as the console's read/write streams.
func New(sched *threads.Scheduler, in io.Reader, out io.Writer) *SynchConsole {
	return &SynchConsole{
		in:        in,
		out:       out,
		readLock:  threads.NewLock(sched),
		writeLock: threads.NewLock(sched),
		readAvail: threads.NewSemaphore(sched, 0),
		writeDone: threads.NewSemaphore(sched, 0),
	}
}

// ReadConsole blocks self until one byte is available on the input
// stream, standing in for fd 0 (spec §4.5).
func (c *SynchConsole) ReadConsole(self *threads.Thread) (byte, common.Err_t) {
	c.readLock.Acquire(self)
	defer c.readLock.Release(self)

	buf := make([]byte, 1)
	go func() {
		_, err := io.ReadFull(c.in, buf)
		c.lastErr = err
		c.readAvail.V() // simulated read-available interrupt
	}()
	c.readAvail.P(self)

	if c.lastErr != nil {
		klog.Debugf(klog.Console, "console", "read error: %v", c.lastErr)
		return 0, common.EFAULT
	}
	return buf[0], common.OK
}

// WriteConsole blocks self until b has been delivered to the output
// stream, standing in for fd 1 (spec §4.5).
func (c *SynchConsole) WriteConsole(self *threads.Thread, b byte) common.Err_t {
	c.writeLock.Acquire(self)
	defer c.writeLock.Release(self)

	go func() {
		_, c.lastErr = c.out.Write([]byte{b})
		c.writeDone.V() // simulated write-done interrupt
	}()
	c.writeDone.P(self)

	if c.lastErr != nil {
		return common.EFAULT
	}
	return common.OK
}
