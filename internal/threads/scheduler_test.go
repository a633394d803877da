package threads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pablos123/paldos/internal/kconfig"
)

func TestPushPopReadyFIFOWithinLevel(t *testing.T) {
	cfg := kconfig.Default()
	cfg.MultiLevelQueue = true
	sched := New(cfg)

	a := sched.newThread("a", 3, false)
	b := sched.newThread("b", 3, false)
	c := sched.newThread("c", 9, false)

	sched.mu.Lock()
	sched.pushReady(a)
	sched.pushReady(b)
	sched.pushReady(c)
	assert.Equal(t, c, sched.popReady(), "higher priority level pops first")
	assert.Equal(t, a, sched.popReady(), "FIFO within a level")
	assert.Equal(t, b, sched.popReady())
	assert.Nil(t, sched.popReady())
	sched.mu.Unlock()
}

func TestSingleFIFOQueueWhenMultiLevelDisabled(t *testing.T) {
	cfg := kconfig.Default()
	cfg.MultiLevelQueue = false
	sched := New(cfg)

	lo := sched.newThread("lo", 0, false)
	hi := sched.newThread("hi", 9, false)

	sched.mu.Lock()
	sched.pushReady(lo)
	sched.pushReady(hi)
	assert.Equal(t, lo, sched.popReady(), "priority is ignored when MultiLevelQueue is off")
	assert.Equal(t, hi, sched.popReady())
	sched.mu.Unlock()
}

func TestNumReadyCountsAcrossLevels(t *testing.T) {
	cfg := kconfig.Default()
	cfg.MultiLevelQueue = true
	sched := New(cfg)

	sched.mu.Lock()
	sched.pushReady(sched.newThread("a", 1, false))
	sched.pushReady(sched.newThread("b", 8, false))
	sched.mu.Unlock()

	assert.Equal(t, 2, sched.NumReady())
}

func TestReclaimRetiringClearsAfterRead(t *testing.T) {
	sched := testScheduler()
	child := sched.Fork("child", 5, false, func(self *Thread) {})

	var retired *Thread
	for i := 0; i < 100 && retired == nil; i++ {
		retired = sched.reclaimRetiring()
		if retired == nil {
			time.Sleep(time.Millisecond)
		}
	}
	assert.Equal(t, child, retired)
	assert.Nil(t, sched.reclaimRetiring())
}
