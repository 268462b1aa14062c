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
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ljanyst/thread-bites/internal/hostsys"
)

// spinlock is the internal spinlock component: a plain word, 0
// free / 1 held, that guards only short bookkeeping regions which never
// call a blocking syscall other than futex.Wake. It must never be held
// across a suspension point (join, mutex contention, cond-wait, rwlock
// contention, once contention, sleep).
//
// The backoff shape — spinActiveIters retries through procyield, then
// spinPassiveIters retries through runtime.Gosched (procyield is itself
// a runtime.Gosched, so both stages yield the processor), then a
// jittered time.Sleep — keeps a contended spinlock from burning a full core
// indefinitely while still never parking the way a condvar wait would.
type spinlock struct {
	word uint32
}

// spinActiveIters/spinPassiveIters are overridable by Config.
var (
	spinActiveIters  = 30
	spinPassiveIters = 1
)

var spinSeedCounter uint32

func (s *spinlock) Lock() {
	if atomic.CompareAndSwapUint32(&s.word, 0, 1) {
		return
	}
	rng := hostsys.NewLCG(atomic.AddUint32(&spinSeedCounter, 1))
	for i := 0; ; i++ {
		if atomic.CompareAndSwapUint32(&s.word, 0, 1) {
			return
		}
		switch {
		case i < spinActiveIters:
			procyield()
		case i < spinActiveIters+spinPassiveIters:
			runtime.Gosched()
		default:
			// Heavily contended: fall back to a short, jittered sleep
			// rather than hot-spinning forever.
			time.Sleep(time.Duration(rng.Next()%500) * time.Microsecond)
		}
	}
}

func (s *spinlock) Unlock() {
	atomic.StoreUint32(&s.word, 0)
}

func (s *spinlock) TryLock() bool {
	return atomic.CompareAndSwapUint32(&s.word, 0, 1)
}

func procyield() {
	runtime.Gosched()
}
