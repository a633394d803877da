package threads

// chanMsg is one pending message: the payload plus a per-message
// condition the sender waits on until some Receive drains this exact
// message (spec §4.1: "blocks the sender on a 'drained' condition until
// a receiver removes that particular message").
type chanMsg struct {
	val     int
	drained bool
	done    *Cond
}

// Channel is a single-slot-semantics rendezvous with internal buffering
// (spec §4.1). Messages are delivered in send order, and a Send returns
// only after some Receive has consumed its particular message — used by
// Thread.Finish/Join to publish an exit status to exactly one joiner.
type Channel struct {
	sched     *Scheduler
	lock      *Lock
	recvReady *Cond
	msgs      []*chanMsg
}

// NewChannel constructs an empty channel.
func NewChannel(sched *Scheduler) *Channel {
	l := NewLock(sched)
	return &Channel{
		sched:     sched,
		lock:      l,
		recvReady: NewCond(sched, l),
	}
}

// Send appends v to the internal buffer, wakes one receiver, and blocks
// until some Receive has consumed this particular message.
func (c *Channel) Send(self *Thread, v int) {
	c.lock.Acquire(self)
	m := &chanMsg{val: v, done: NewCond(c.sched, c.lock)}
	c.msgs = append(c.msgs, m)
	c.recvReady.Signal(self)
	for !m.drained {
		m.done.Wait(self)
	}
	c.lock.Release(self)
}

// Receive blocks until the buffer is non-empty, pops the head message,
// wakes its sender, and returns its payload.
func (c *Channel) Receive(self *Thread) int {
	c.lock.Acquire(self)
	for len(c.msgs) == 0 {
		c.recvReady.Wait(self)
	}
	m := c.msgs[0]
	c.msgs = c.msgs[1:]
	m.drained = true
	m.done.Signal(self)
	v := m.val
	c.lock.Release(self)
	return v
}

// Pending reports how many messages are buffered awaiting a receiver.
func (c *Channel) Pending(self *Thread) int {
	c.lock.Acquire(self)
	defer c.lock.Release(self)
	return len(c.msgs)
}
