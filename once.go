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
	"math"
	"sync/atomic"

	"github.com/ljanyst/thread-bites/internal/futex"
	"github.com/ljanyst/thread-bites/internal/hostsys"
)

const (
	onceUninitialized uint32 = iota
	onceRunning
	onceDone
)

// Once provides at-most-once execution of an initializer. Its zero
// value is ready to use, matching sync.Once's ergonomics.
type Once struct {
	word uint32
}

// Do runs fn exactly once across all callers that share *o, blocking
// concurrent callers until the winning call's fn returns. If the
// winning goroutine is cancelled mid-call, the word resets to
// uninitialized and one waiter is woken to retry, modeled with a
// cleanup handler so the reset happens regardless of how the call stack
// unwinds.
func (o *Once) Do(fn func()) {
	if atomic.LoadUint32(&o.word) == onceDone {
		return
	}
	o.doSlow(fn)
}

func (o *Once) doSlow(fn func()) {
	// A plain registry lookup, not Self(): the registry's own bootstrap
	// runs through a Once, and Self() would re-enter it.
	self := procRegistry.lookup(hostsys.Gettid())
	for {
		switch atomic.LoadUint32(&o.word) {
		case onceDone:
			return
		case onceRunning:
			if self != nil {
				self.checkCancelPoint()
			}
			_ = futex.Wait(&o.word, onceRunning)
			continue
		default:
			if atomic.CompareAndSwapUint32(&o.word, onceUninitialized, onceRunning) {
				o.run(fn)
				return
			}
		}
	}
}

func (o *Once) run(fn func()) {
	t := procRegistry.lookup(hostsys.Gettid())
	if t != nil {
		t.pushCleanup(func(any) { o.abandon() }, nil)
	}
	fn()
	if t != nil {
		t.popCleanup(false)
	}
	atomic.StoreUint32(&o.word, onceDone)
	_, _ = futex.Wake(&o.word, math.MaxInt32)
}

// abandon resets a once that was running when its initializing thread
// was cancelled, waking a single waiter to retry rather than every
// waiter racing to re-run fn.
func (o *Once) abandon() {
	if atomic.CompareAndSwapUint32(&o.word, onceRunning, onceUninitialized) {
		_, _ = futex.Wake(&o.word, 1)
	}
}
