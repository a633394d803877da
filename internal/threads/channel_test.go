package threads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChannelSendBlocksUntilReceive(t *testing.T) {
	sched := testScheduler()
	ch := NewChannel(sched)

	sent := make(chan struct{})
	sched.Fork("sender", 5, false, func(self *Thread) {
		ch.Send(self, 42)
		close(sent)
	})

	select {
	case <-sent:
		t.Fatal("Send returned before any Receive drained it")
	case <-time.After(50 * time.Millisecond):
	}

	recv := sched.newThread("receiver", 5, false)
	v := ch.Receive(recv)
	assert.Equal(t, 42, v)

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("Send never unblocked after Receive")
	}
}

func TestChannelDeliversInSendOrder(t *testing.T) {
	sched := testScheduler()
	ch := NewChannel(sched)

	recv := sched.newThread("receiver", 5, false)
	// Fork each sender only after the previous one is queued, so send
	// order is the fork order.
	for i := 0; i < 3; i++ {
		i := i
		sched.Fork("sender", 5, false, func(self *Thread) {
			ch.Send(self, i)
		})
		for ch.Pending(recv) <= i {
			time.Sleep(time.Millisecond)
		}
	}

	got := []int{ch.Receive(recv), ch.Receive(recv), ch.Receive(recv)}
	assert.Equal(t, []int{0, 1, 2}, got)
}
