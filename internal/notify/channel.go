// Package notify delivers completion and progress events from worker goroutines to
// the single consumer that renders them.
//
// The channel is an unbounded intrusive multi-producer single-consumer queue.
// Producers never block and never take a lock; the consumer polls once per UI tick
// and drains everything. Losing freshness is acceptable, losing state is not: the
// consumer can always re-read slot results, so notifications only say "look again".
package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

type node struct {
	value Notification
	next  atomic.Pointer[node]
}

// Channel is a non-blocking notification queue. Any number of goroutines may Push;
// TryRecv, Drain and Wait belong to one consumer.
type Channel struct {
	tail atomic.Pointer[node]

	recvMu sync.Mutex
	head   *node

	wake   chan struct{}
	length atomic.Int64
	pushed atomic.Uint64
}

// NewChannel creates an empty channel
func NewChannel() *Channel {
	stub := &node{}
	c := &Channel{
		head: stub,
		wake: make(chan struct{}, 1),
	}
	c.tail.Store(stub)
	return c
}

// Push appends n. It never blocks, regardless of whether anyone is consuming.
func (c *Channel) Push(n Notification) {
	if n == nil {
		return
	}
	nd := &node{value: n}
	prev := c.tail.Swap(nd)
	prev.next.Store(nd)

	c.length.Add(1)
	c.pushed.Add(1)

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// TryRecv returns the oldest available notification without blocking.
// Arrival order is preserved; notifications from one producer are FIFO.
func (c *Channel) TryRecv() (Notification, bool) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	next := c.head.next.Load()
	if next == nil {
		// Either empty or a producer is between Swap and Store; the value shows up
		// on the next poll.
		return nil, false
	}
	c.head = next
	v := next.value
	next.value = nil
	c.length.Add(-1)
	return v, true
}

// Drain receives every notification currently available
func (c *Channel) Drain() []Notification {
	var out []Notification
	for {
		n, ok := c.TryRecv()
		if !ok {
			return out
		}
		out = append(out, n)
	}
}

// Wait blocks until a notification may be available or ctx is done.
// A nil return does not guarantee TryRecv succeeds; callers drain and wait again.
func (c *Channel) Wait(ctx context.Context) error {
	if c.length.Load() > 0 {
		return nil
	}
	select {
	case <-c.wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the approximate number of undelivered notifications
func (c *Channel) Len() int {
	return int(c.length.Load())
}

// Pushed returns the total number of notifications ever pushed
func (c *Channel) Pushed() uint64 {
	return c.pushed.Load()
}
