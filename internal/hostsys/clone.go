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

package hostsys

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/ljanyst/thread-bites/internal/futex"
)

// RequiredCloneFlags is the flag set a POSIX-thread-style clone helper
// needs: a shared address space, open file table, filesystem root and
// signal handlers, thread-group membership, and the
// parent-settid/child-cleartid futex contract used for the join
// barrier.
const RequiredCloneFlags = unix.CLONE_VM |
	unix.CLONE_FS |
	unix.CLONE_FILES |
	unix.CLONE_SIGHAND |
	unix.CLONE_THREAD |
	unix.CLONE_PARENT_SETTID |
	unix.CLONE_CHILD_CLEARTID

// Cloner starts a new kernel task running fn with RequiredCloneFlags.
// ctid is the futex word the kernel clears
// and wakes (CLONE_CHILD_CLEARTID) once the task has finished running
// fn and torn down; Start returns the new task's kernel tid once it is
// known to have begun executing.
//
// A real clone(2) call cannot be issued directly from Go for this
// purpose: the kernel task it starts has no Go scheduler state
// (no `g`, no `m`) until the runtime's own assembly trampoline
// (`needm`/`mstart`) runs on it, and that trampoline is not something
// user code can invoke on a task the runtime didn't create itself. This
// interface exists so the threading core depends only on the clone
// *contract* (flags, start barrier, child-cleartid), letting the
// concrete implementation be swapped for a true raw-clone trampoline on
// a freestanding target without touching any other component.
type Cloner interface {
	Start(fn func(), ctid *uint32) (tid int32, err error)
}

// GoroutineCloner is the default Cloner: it pins a new goroutine to its
// own kernel task with runtime.LockOSThread, the only mechanism a
// hosted Go program has for dedicating one OS thread to one
// user-supplied function. It honors the same CLONE_CHILD_CLEARTID
// contract a genuine clone(2) caller would observe.
type GoroutineCloner struct{}

func (GoroutineCloner) Start(fn func(), ctid *uint32) (int32, error) {
	started := make(chan int32, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		// Deferred ahead of fn, not placed after it: fn may end this
		// goroutine early via runtime.Goexit (the thread-lifecycle
		// layer's cancellation/Exit path), which skips every statement
		// lexically after the call but still runs deferred functions
		// registered before it. A plain post-call statement here would
		// silently never run on that path.
		defer func() {
			// CLONE_CHILD_CLEARTID: zero the word and wake exactly one
			// waiter (the joiner), mirroring the kernel's own behavior
			// on task exit.
			if ctid != nil {
				atomic.StoreUint32(ctid, 0)
				_, _ = futex.Wake(ctid, 1)
			}
		}()

		started <- Gettid()

		fn()
	}()
	return <-started, nil
}
