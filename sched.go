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
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ljanyst/thread-bites/internal/hostsys"
)

// SchedPolicy mirrors the Linux scheduling policies this runtime is
// willing to request for a task. Values match the kernel's own
// SCHED_* numbering so they can be passed straight through to
// sched_setscheduler(2).
type SchedPolicy int32

const (
	SchedOther SchedPolicy = 0
	SchedFIFO  SchedPolicy = 1
	SchedRR    SchedPolicy = 2
)

// schedDescriptor holds a thread's scheduling state: the policy and
// user-requested priority it was created or last configured with, and
// the effective priority currently in force once inherit/protect
// boosts are folded in.
type schedDescriptor struct {
	policy       SchedPolicy
	userPriority int32
	effPriority  int32
}

// kernelSchedParam mirrors struct sched_param from <sched.h>: a single
// priority field, padded implicitly to whatever alignment the kernel
// ABI expects for this one-member struct (none beyond int32 on
// x86_64).
type kernelSchedParam struct {
	priority int32
}

// applyKernelSchedParam issues sched_setscheduler(2) for tid via the
// raw six-argument syscall shim. SCHED_OTHER carries no meaningful
// priority on Linux, so calls for it are skipped rather than rejected.
func applyKernelSchedParam(tid int32, policy SchedPolicy, priority int32) error {
	if policy == SchedOther {
		return nil
	}
	param := kernelSchedParam{priority: priority}
	_, err := hostsys.RawSyscall6(unix.SYS_SCHED_SETSCHEDULER,
		uintptr(tid), uintptr(policy), uintptr(unsafe.Pointer(&param)), 0, 0, 0)
	return err
}

// recomputeEffectivePriority folds the thread's user priority together
// with the ceilings of its held protect mutexes and the priorities of
// the highest-priority waiters on its held inherit mutexes, updates
// t.sched.effPriority, and — if it changed — pushes the new priority
// down to the kernel. Callers must not hold t.spin.
func (t *Thread) recomputeEffectivePriority() {
	t.spin.Lock()
	eff := t.sched.userPriority
	t.protectMutexes.forEach(func(m *Mutex) {
		if c := atomic.LoadInt32(&m.ceiling); c > eff {
			eff = c
		}
	})
	t.inheritMutexes.forEach(func(m *Mutex) {
		if b := m.topWaiterPriority(); b > eff {
			eff = b
		}
	})
	policy := t.sched.policy
	changed := eff != t.sched.effPriority
	t.sched.effPriority = eff
	tid := t.tid
	t.spin.Unlock()

	if changed {
		_ = applyKernelSchedParam(tid, policy, eff)
	}
}

// EffectivePriority returns the thread's current effective priority
// (user priority boosted by any held inherit/protect mutex).
func (t *Thread) EffectivePriority() int32 {
	t.spin.Lock()
	defer t.spin.Unlock()
	return t.sched.effPriority
}

// SetSchedParam updates the thread's user-requested policy/priority
// and recomputes its effective priority.
func (t *Thread) SetSchedParam(policy SchedPolicy, priority int32) error {
	if priority < 0 || priority > 99 {
		return EInvalidArgument
	}
	t.spin.Lock()
	t.sched.policy = policy
	t.sched.userPriority = priority
	t.spin.Unlock()
	t.recomputeEffectivePriority()
	return nil
}
