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

// cleanupNode is a lexically-scoped cleanup handler, intrusively linked
// into its owning stack without any per-push allocation beyond the
// node itself.
type cleanupNode struct {
	fn   func(arg any)
	arg  any
	next *cleanupNode
}

// cleanupStack is the owning thread's LIFO stack of cleanup handlers.
// It is only ever touched by its owning thread, except that a
// signal-delivered cancellation unwinds it from that same thread's own
// exit path, never from another thread.
type cleanupStack struct {
	top *cleanupNode
}

func (c *cleanupStack) push(fn func(arg any), arg any) {
	c.top = &cleanupNode{fn: fn, arg: arg, next: c.top}
}

// pop removes the top handler, running it first if execute is true.
func (c *cleanupStack) pop(execute bool) {
	n := c.top
	if n == nil {
		return
	}
	c.top = n.next
	if execute {
		n.fn(n.arg)
	}
}

// unwindAll runs every remaining handler LIFO, used by Exit and by the
// cancellation teardown path.
func (c *cleanupStack) unwindAll() {
	for c.top != nil {
		c.pop(true)
	}
}

// mutexListNode intrusively links a *Mutex into a thread's
// held-protect-mutexes or held-inherit-mutexes list, again avoiding a
// per-acquire allocation.
type mutexListNode struct {
	m    *Mutex
	next *mutexListNode
}

type mutexList struct {
	head *mutexListNode
}

func (l *mutexList) add(m *Mutex) *mutexListNode {
	n := &mutexListNode{m: m, next: l.head}
	l.head = n
	return n
}

func (l *mutexList) remove(n *mutexListNode) {
	if l.head == n {
		l.head = n.next
		return
	}
	for cur := l.head; cur != nil; cur = cur.next {
		if cur.next == n {
			cur.next = n.next
			return
		}
	}
}

// forEach calls fn on every mutex currently in the list. fn must not
// mutate the list.
func (l *mutexList) forEach(fn func(*Mutex)) {
	for cur := l.head; cur != nil; cur = cur.next {
		fn(cur.m)
	}
}
