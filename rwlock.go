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
)

// RWMutex is the writer-preferring read-write lock. Its zero
// value is ready to use.
//
// queuedWriters is incremented once a writer starts waiting and
// decremented only once that writer finally acquires, rather than on
// every wake-and-retry cycle, which would otherwise let a still-waiting
// writer's queued slot lapse between wake-ups. Readers arriving while
// any writer is queued must still stall.
type RWMutex struct {
	spin spinlock

	readers       int32
	writer        *Thread
	queuedWriters int32

	readerGen uint32
	writerGen uint32
}

// RLock blocks while a writer holds rw or any writer is queued.
func (rw *RWMutex) RLock() error {
	self := Self()
	for {
		rw.spin.Lock()
		if rw.writer == nil && rw.queuedWriters == 0 {
			rw.readers++
			rw.spin.Unlock()
			return nil
		}
		gen := rw.readerGen
		rw.spin.Unlock()

		if self != nil {
			self.checkCancelPoint()
		}
		_ = futex.Wait(&rw.readerGen, gen)
	}
}

// TryRLock is RLock's non-blocking form.
func (rw *RWMutex) TryRLock() error {
	rw.spin.Lock()
	defer rw.spin.Unlock()
	if rw.writer != nil || rw.queuedWriters != 0 {
		return EBusy
	}
	rw.readers++
	return nil
}

// RUnlock releases one reader's hold, waking a queued writer if this
// was the last reader.
func (rw *RWMutex) RUnlock() error {
	rw.spin.Lock()
	if rw.readers == 0 {
		rw.spin.Unlock()
		return EPermission
	}
	rw.readers--
	wakeWriter := rw.readers == 0 && rw.queuedWriters > 0
	rw.spin.Unlock()

	if wakeWriter {
		atomic.AddUint32(&rw.writerGen, 1)
		_, _ = futex.Wake(&rw.writerGen, 1)
	}
	return nil
}

// WLock blocks until rw has no writer and no readers, then claims it.
func (rw *RWMutex) WLock() error {
	self := Self()

	rw.spin.Lock()
	if rw.writer == nil && rw.readers == 0 {
		rw.writer = self
		rw.spin.Unlock()
		return nil
	}
	rw.queuedWriters++
	rw.spin.Unlock()

	if self != nil {
		self.pushCleanup(func(any) {
			rw.spin.Lock()
			rw.queuedWriters--
			rw.spin.Unlock()
		}, nil)
	}

	for {
		rw.spin.Lock()
		if rw.writer == nil && rw.readers == 0 {
			rw.writer = self
			rw.queuedWriters--
			rw.spin.Unlock()
			break
		}
		gen := rw.writerGen
		rw.spin.Unlock()

		if self != nil {
			self.checkCancelPoint()
		}
		_ = futex.Wait(&rw.writerGen, gen)
	}

	if self != nil {
		self.popCleanup(false)
	}
	return nil
}

// TryWLock is WLock's non-blocking form.
func (rw *RWMutex) TryWLock() error {
	self := Self()
	rw.spin.Lock()
	defer rw.spin.Unlock()
	if rw.writer != nil || rw.readers != 0 {
		return EBusy
	}
	rw.writer = self
	return nil
}

// WUnlock releases the write lock, preferring to wake a queued writer
// over the waiting readers.
func (rw *RWMutex) WUnlock() error {
	self := Self()
	rw.spin.Lock()
	if rw.writer == nil || (self != nil && !Equal(rw.writer, self)) {
		rw.spin.Unlock()
		return EPermission
	}
	rw.writer = nil
	hasQueuedWriters := rw.queuedWriters > 0
	rw.spin.Unlock()

	if hasQueuedWriters {
		atomic.AddUint32(&rw.writerGen, 1)
		_, _ = futex.Wake(&rw.writerGen, 1)
	} else {
		atomic.AddUint32(&rw.readerGen, 1)
		_, _ = futex.Wake(&rw.readerGen, math.MaxInt32)
	}
	return nil
}

// Destroy reports EInvalidArgument if rw is currently held by any
// reader or writer, unlike Mutex.Destroy, which reports EBusy for the
// analogous case: a held rwlock is treated as a caller error rather
// than lock contention.
func (rw *RWMutex) Destroy() error {
	rw.spin.Lock()
	defer rw.spin.Unlock()
	if rw.writer != nil || rw.readers != 0 {
		return EInvalidArgument
	}
	return nil
}
