package threads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablos123/paldos/internal/common"
)

func TestForkJoinReturnsExitStatus(t *testing.T) {
	sched := testScheduler()
	child := sched.Fork("child", 5, true, func(self *Thread) {
		self.Sleep(false)
	})

	// wake the child manually since it parks unconditionally above
	go func() {
		time.Sleep(10 * time.Millisecond)
		child.wake()
	}()

	main := sched.newThread("main", 5, false)
	status := sched.Join(main, child)
	assert.Equal(t, 0, status)
	assert.Equal(t, Finished, child.Status())
}

func TestJoinOnNonJoinablePanics(t *testing.T) {
	sched := testScheduler()
	child := sched.newThread("child", 5, false)
	main := sched.newThread("main", 5, false)

	assert.Panics(t, func() { sched.Join(main, child) })
}

func TestSetPriorityRequeuesReadyThread(t *testing.T) {
	cfg := testScheduler().cfg
	cfg.MultiLevelQueue = true
	sched := New(cfg)

	t1 := sched.newThread("t1", 2, false)
	sched.mu.Lock()
	sched.pushReady(t1)
	sched.mu.Unlock()

	require.Equal(t, 2, sched.levelFor(t1.Priority()))
	t1.SetPriority(7)
	assert.Equal(t, 7, t1.Priority())

	sched.mu.Lock()
	found := false
	for _, c := range sched.levels[7] {
		if c == t1 {
			found = true
		}
	}
	sched.mu.Unlock()
	assert.True(t, found, "thread should have moved to its new priority level")
}

func TestSpaceIdAndAddrSpaceRoundTrip(t *testing.T) {
	sched := testScheduler()
	self := sched.newThread("proc", 5, false)

	assert.Equal(t, common.NoSpace, self.SpaceId())
	self.SetSpaceId(common.SpaceId(3))
	assert.Equal(t, common.SpaceId(3), self.SpaceId())

	assert.Nil(t, self.AddrSpace())
	self.SetAddrSpace("fake-addrspace")
	assert.Equal(t, "fake-addrspace", self.AddrSpace())
}

func TestIncFaultCount(t *testing.T) {
	sched := testScheduler()
	self := sched.newThread("proc", 5, false)

	assert.Equal(t, uint64(1), self.IncFaultCount())
	assert.Equal(t, uint64(2), self.IncFaultCount())
}
