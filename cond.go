// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package thread

import (
	"sync/atomic"

	"github.com/ljanyst/thread-bites/internal/futex"
)

// Cond is the condition variable. Its zero value is ready to
// use; the mutex it binds to is recorded on the first Wait call.
type Cond struct {
	spin spinlock

	mu      *Mutex
	waiters int32
	seq     uint32
}

// NewCond returns a ready-to-use condition variable.
func NewCond() *Cond {
	return &Cond{}
}

// Wait atomically releases m and blocks until Signal or Broadcast wakes
// it, then reacquires m before returning. If the calling thread is
// cancelled while waiting, m is reacquired by a cleanup handler before
// the thread unwinds.
func (c *Cond) Wait(m *Mutex) error {
	self := Self()

	c.spin.Lock()
	if c.mu == nil {
		c.mu = m
	} else if c.mu != m {
		c.spin.Unlock()
		return EInvalidArgument
	}
	c.waiters++
	mySeq := atomic.LoadUint32(&c.seq)
	c.spin.Unlock()

	if err := m.Unlock(); err != nil {
		c.spin.Lock()
		c.waiters--
		c.spin.Unlock()
		return err
	}

	if self != nil {
		self.pushCleanup(func(any) {
			c.spin.Lock()
			c.waiters--
			c.spin.Unlock()
			_ = m.Lock()
		}, nil)
	}

	for atomic.LoadUint32(&c.seq) == mySeq {
		if self != nil {
			self.checkCancelPoint()
		}
		_ = futex.Wait(&c.seq, mySeq)
	}

	if self != nil {
		self.popCleanup(false)
	}

	c.spin.Lock()
	c.waiters--
	c.spin.Unlock()

	return m.Lock()
}

// Signal bumps the sequence and wakes at most one parked waiter. A
// waiter that took its snapshot before the call but has not yet parked
// also sees the bumped sequence and returns.
func (c *Cond) Signal() {
	atomic.AddUint32(&c.seq, 1)
	_, _ = futex.Wake(&c.seq, 1)
}

// Broadcast wakes every current waiter. Waiters that took their
// snapshot before this call but reach the futex wait after it observe
// the bumped sequence and proceed without blocking; a Wait that starts
// after this call blocks until the next Signal or Broadcast.
func (c *Cond) Broadcast() {
	c.spin.Lock()
	n := c.waiters
	c.spin.Unlock()

	atomic.AddUint32(&c.seq, 1)
	if n > 0 {
		_, _ = futex.Wake(&c.seq, n)
	}
}
