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

	"github.com/ljanyst/thread-bites/internal/hostsys"
)

// CancelState is a thread's enabled/disabled cancellation gate.
type CancelState int32

const (
	CancelEnable CancelState = iota
	CancelDisable
)

// CancelType selects how a pending cancel is delivered.
type CancelType int32

const (
	CancelDeferred CancelType = iota
	CancelAsynchronous
)

const (
	cancelNotPending uint32 = iota
	cancelPending
)

// canceledSentinel is the value Exit/Join report for a thread that
// terminated via cancellation rather than a normal return.
var canceledSentinel = new(struct{})

// Canceled reports whether retval is the canceled sentinel, i.e.
// whether the thread that produced it terminated via Cancel rather
// than returning normally or calling Exit.
func Canceled(retval any) bool {
	return retval == any(canceledSentinel)
}

// SetCancelState sets the calling thread's cancellation gate, returning
// the previous state, mirroring pthread_setcancelstate.
func SetCancelState(state CancelState) CancelState {
	t := Self()
	if t == nil {
		return CancelEnable
	}
	old := CancelState(atomic.SwapInt32(&t.cancelState, int32(state)))
	return old
}

// SetCancelType sets the calling thread's deferred/asynchronous mode,
// returning the previous type, mirroring pthread_setcanceltype.
func SetCancelType(typ CancelType) CancelType {
	t := Self()
	if t == nil {
		return CancelDeferred
	}
	old := CancelType(atomic.SwapInt32(&t.cancelType, int32(typ)))
	return old
}

// Cancel marks t as cancel-pending and signals t's
// kernel task so a futex wait blocked inside join/cond-wait/rwlock
// returns EINTR immediately rather than only once something else wakes
// it. This applies to both cancellation types: a thread parked in a
// genuine blocking wait has no other way to reach the cancellation
// point sitting in its own retry loop. Type only changes how eagerly
// checkCancelPoint is expected to act once reached — not whether the
// wait gets interrupted at all. See internal/hostsys.InstallCancelHandler
// for why the signal itself cannot run the teardown.
func Cancel(t *Thread) error {
	if t == nil {
		return EInvalidArgument
	}
	atomic.StoreUint32(&t.cancelPending, cancelPending)
	if CancelState(atomic.LoadInt32(&t.cancelState)) == CancelEnable {
		_ = hostsys.Tgkill(t.tid, hostsys.CancelSignal)
	}
	return nil
}

// TestCancel is an explicit cancellation point: it does nothing but
// check for, and act on, a pending cancel against the calling thread.
func TestCancel() {
	if t := Self(); t != nil {
		t.checkCancelPoint()
	}
}

// checkCancelPoint is invoked at every designated suspension point
// (join, mutex-lock contention, cond-wait, rwlock contention, once
// contention, sleep). If a cancel is pending, enabled, and the thread
// is not already unwinding, it runs the normal exit teardown with the
// canceled sentinel as the return value and never returns to the
// caller.
func (t *Thread) checkCancelPoint() {
	if atomic.LoadUint32(&t.cancelPending) != cancelPending {
		return
	}
	if CancelState(atomic.LoadInt32(&t.cancelState)) != CancelEnable {
		return
	}
	t.spin.Lock()
	if t.terminating {
		t.spin.Unlock()
		return
	}
	t.terminating = true
	t.spin.Unlock()

	t.retval = canceledSentinel
	runtime.Goexit()
}
