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
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ljanyst/thread-bites/internal/futex"
	"github.com/ljanyst/thread-bites/internal/hostsys"
)

// cloner is the swappable thread-start collaborator; tests may replace
// it with a fake to exercise Create's bookkeeping without spawning
// real goroutines.
var cloner hostsys.Cloner = hostsys.GoroutineCloner{}

// defaultStackSize is the stack_size attribute default, overridable by
// Config.
var defaultStackSize = uintptr(2 * 1024 * 1024)

// DetachState is the joinable/detached half of a thread's attributes.
type DetachState int

const (
	Joinable DetachState = iota
	Detached
)

// InheritSched selects whether a new thread's scheduling parameters
// come from its creator or from the attributes object.
type InheritSched int

const (
	InheritFromCreator InheritSched = iota
	ExplicitSched
)

func (d DetachState) String() string {
	if d == Detached {
		return "detached"
	}
	return "joinable"
}

// Attr bundles the creation-time attributes of a new thread.
type Attr struct {
	StackSize     uintptr
	DetachState   DetachState
	InheritSched  InheritSched
	SchedPolicy   SchedPolicy
	SchedPriority int32
}

// DefaultAttr returns the attributes Create uses when given nil:
// a page-rounded default stack, joinable, scheduling inherited from
// the creator.
func DefaultAttr() Attr {
	return Attr{
		StackSize:    defaultStackSize,
		DetachState:  Joinable,
		InheritSched: InheritFromCreator,
	}
}

type joinStatus int32

const (
	joinableRunning joinStatus = iota
	detachedRunning
	exited
	joined
)

// Thread is the thread descriptor. Its zero value is not useful;
// obtain one from Create or Self.
type Thread struct {
	tid    int32
	isMain bool

	stack []byte

	entry func(arg any) any
	arg   any
	// retval is only ever written by the thread that owns it (itself,
	// via entry's return, Exit, or cancellation) and only ever read
	// after that thread's join barrier (joinWord) has been observed
	// cleared, so no lock guards it.
	retval any

	spin spinlock

	startWord uint32
	joinWord  uint32

	tls []tlsSlot

	cleanup cleanupStack

	joinStatusWord int32

	cancelState   int32
	cancelType    int32
	cancelPending uint32
	terminating   bool

	protectMutexes mutexList
	inheritMutexes mutexList

	sched schedDescriptor

	attr Attr
}

func newThreadDescriptor(attr *Attr) *Thread {
	ensureKeyTable()
	a := DefaultAttr()
	if attr != nil {
		a = *attr
	}
	return &Thread{
		tls:       make([]tlsSlot, len(tlsKeys.slots)),
		joinWord:  1,
		startWord: 0,
		attr:      a,
	}
}

func roundUpPage(size uintptr) uintptr {
	if size == 0 {
		size = defaultStackSize
	}
	return (size + hostsys.PageSize - 1) &^ (hostsys.PageSize - 1)
}

// Self returns the calling OS thread's descriptor. The OS thread of the
// very first caller anywhere in the process becomes the "main"
// descriptor; every other descriptor comes from Create. Lookup is by
// kernel tid, so a goroutine currently running on an OS thread that is
// neither the bootstrap thread nor one this package started gets nil,
// even if that goroutine itself made the bootstrap call.
func Self() *Thread {
	tid := hostsys.Gettid()
	if t := procRegistry.lookup(tid); t != nil {
		return t
	}
	main := ensureBootstrap()
	if main.tid == tid {
		return main
	}
	return nil
}

// Equal reports whether a and b name the same thread.
func Equal(a, b *Thread) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.tid == b.tid
}

// Create spawns a new thread running fn(arg). attr may be nil for
// DefaultAttr().
func Create(attr *Attr, fn func(arg any) any, arg any) (*Thread, error) {
	creator := Self()

	a := DefaultAttr()
	if attr != nil {
		a = *attr
	}

	stack, err := hostsys.MapStack(roundUpPage(a.StackSize))
	if err != nil {
		return nil, EResourceExhausted
	}

	t := newThreadDescriptor(&a)
	t.stack = stack
	t.entry = fn
	t.arg = arg
	if a.DetachState == Detached {
		t.joinStatusWord = int32(detachedRunning)
	} else {
		t.joinStatusWord = int32(joinableRunning)
	}

	if a.InheritSched == InheritFromCreator && creator != nil {
		creator.spin.Lock()
		t.sched = creator.sched
		creator.spin.Unlock()
	} else {
		t.sched = schedDescriptor{
			policy:       a.SchedPolicy,
			userPriority: a.SchedPriority,
			effPriority:  a.SchedPriority,
		}
	}

	wrapper := func() {
		for atomic.LoadUint32(&t.startWord) == 0 {
			_ = futex.Wait(&t.startWord, 0)
		}
		defer t.finish()
		t.retval = t.entry(t.arg)
	}

	tid, err := cloner.Start(wrapper, &t.joinWord)
	if err != nil {
		_ = hostsys.UnmapStack(stack)
		return nil, EResourceExhausted
	}
	t.tid = tid
	procRegistry.register(t)

	if a.InheritSched == ExplicitSched {
		_ = applyKernelSchedParam(tid, a.SchedPolicy, a.SchedPriority)
	}

	atomic.StoreUint32(&t.startWord, 1)
	_, _ = futex.Wake(&t.startWord, 1)

	log.Debug().Int32("tid", tid).Str("detach", fmt.Sprint(a.DetachState)).Msg("thread created")
	return t, nil
}

// finish runs the exit teardown: cleanup handlers LIFO, TLS
// destructors, registry removal, and — for a detached thread —
// immediate resource reclamation. It always runs as a deferred call
// registered before entry invocation, so it fires whether entry
// returned normally, called Exit, or was cancelled (both paths end in
// runtime.Goexit, which still runs pending defers).
//
// Reclaiming t.stack here is always safe: a goroutine executes on a
// stack the Go runtime manages, never on t.stack, which this runtime
// only mmaps to keep per-thread stack bookkeeping faithful to the
// attribute a caller requested.
func (t *Thread) finish() {
	t.cleanup.unwindAll()
	t.runTLSDestructors()

	t.spin.Lock()
	detached := false
	switch joinStatus(t.joinStatusWord) {
	case joinableRunning:
		t.joinStatusWord = int32(exited)
	case detachedRunning:
		detached = true
	}
	t.spin.Unlock()

	procRegistry.unregister(t)

	if detached {
		_ = hostsys.UnmapStack(t.stack)
	}
	log.Debug().Int32("tid", t.tid).Bool("canceled", Canceled(t.retval)).Msg("thread exited")
}

// Exit terminates the calling thread with retval as its exit value,
// running the same teardown a normal entry-function return would.
func Exit(retval any) {
	t := Self()
	if t == nil {
		return
	}
	t.retval = retval
	runtime.Goexit()
}

// Join blocks until target exits, then returns its exit value exactly
// once. Joining a detached or already-joined thread fails with
// EInvalidArgument; joining oneself fails with EDeadlock.
func Join(target *Thread) (any, error) {
	if target == nil {
		return nil, EInvalidArgument
	}
	self := Self()
	if self != nil && Equal(self, target) {
		return nil, EDeadlock
	}

	target.spin.Lock()
	status := joinStatus(target.joinStatusWord)
	target.spin.Unlock()
	if status == detachedRunning || status == joined {
		return nil, EInvalidArgument
	}

	for atomic.LoadUint32(&target.joinWord) != 0 {
		if self != nil {
			self.checkCancelPoint()
		}
		_ = futex.Wait(&target.joinWord, 1)
	}

	target.spin.Lock()
	status = joinStatus(target.joinStatusWord)
	if status != exited {
		target.spin.Unlock()
		return nil, EInvalidArgument
	}
	target.joinStatusWord = int32(joined)
	target.spin.Unlock()

	retval := target.retval
	_ = hostsys.UnmapStack(target.stack)
	return retval, nil
}

// Detach atomically marks target detached; if target has already
// exited, its resources are reclaimed immediately.
func Detach(target *Thread) error {
	if target == nil {
		return EInvalidArgument
	}
	target.spin.Lock()
	defer target.spin.Unlock()
	switch joinStatus(target.joinStatusWord) {
	case joinableRunning:
		target.joinStatusWord = int32(detachedRunning)
		return nil
	case exited:
		target.joinStatusWord = int32(joined)
		stack := target.stack
		go func() { _ = hostsys.UnmapStack(stack) }()
		return nil
	default:
		return EInvalidArgument
	}
}

// CleanupPush registers fn to run (LIFO) on the calling thread's exit
// or on an explicit CleanupPop(true).
func CleanupPush(fn func(arg any), arg any) {
	if t := Self(); t != nil {
		t.pushCleanup(fn, arg)
	}
}

// CleanupPop unlinks the calling thread's most recently pushed cleanup
// handler, running it first if execute is true.
func CleanupPop(execute bool) {
	if t := Self(); t != nil {
		t.popCleanup(execute)
	}
}

func (t *Thread) pushCleanup(fn func(arg any), arg any) {
	t.cleanup.push(fn, arg)
}

func (t *Thread) popCleanup(execute bool) {
	t.cleanup.pop(execute)
}

// Sleep blocks the calling thread for at least d, checking for a
// pending cancel before each nanosleep(2) step the way Join/Lock/
// Cond.Wait check before each futex wait. A signal delivered by Cancel
// interrupts the underlying syscall early, so the loop can notice the
// pending cancel and unwind well before d has fully elapsed.
func Sleep(d time.Duration) error {
	self := Self()
	for d > 0 {
		if self != nil {
			self.checkCancelPoint()
		}
		rem, err := hostsys.Sleep(d)
		if err == unix.EINTR {
			d = rem
			continue
		}
		return err
	}
	return nil
}
