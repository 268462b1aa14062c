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

package futex

import "sync/atomic"

// BinaryLock is a trivial two-state futex lock: a single word, 0
// (free) or 1 (held), with no waiter accounting and no owner tracking.
// It exists for host collaborators that need a real, syscall-backed
// lock but none of the POSIX mutex semantics (error checking,
// recursion, priority protocols) the root package's Mutex provides —
// using the full Mutex there would be circular, since the allocator
// and output sink sit underneath it.
type BinaryLock struct {
	word uint32
}

// Lock acquires the lock.
func (l *BinaryLock) Lock() {
	for {
		if atomic.CompareAndSwapUint32(&l.word, 0, 1) {
			return
		}
		_ = Wait(&l.word, 1)
	}
}

// Unlock releases the lock and wakes one waiter.
func (l *BinaryLock) Unlock() {
	atomic.StoreUint32(&l.word, 0)
	_, _ = Wake(&l.word, 1)
}
