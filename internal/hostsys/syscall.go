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

// Package hostsys provides the external collaborators the core
// threading runtime treats as opaque: a six-argument raw syscall shim,
// a process-heap allocator, a write(2)-backed output sink, and a
// thread start ("clone") primitive. This package supplies the concrete
// Linux/x86_64 adapters the rest of the module is built against.
package hostsys

import (
	"time"

	"golang.org/x/sys/unix"
)

// RawSyscall6 issues the given syscall with up to six arguments using
// the x86_64 SYSV convention (rdi, rsi, rdx, r10, r8, r9), retrying
// transparently on EINTR. Callers that need the raw untranslated result
// (e.g. for a value that is legitimately negative), or that must not be
// silently retried across a signal, should use RawSyscall6NoRetry
// instead.
func RawSyscall6(trap, a1, a2, a3, a4, a5, a6 uintptr) (uintptr, error) {
	for {
		r1, _, errno := unix.Syscall6(trap, a1, a2, a3, a4, a5, a6)
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return 0, errno
		}
		return r1, nil
	}
}

// RawSyscall6NoRetry issues the syscall exactly once and reports the raw
// errno, including EINTR, to the caller, for collaborators that keep
// their own restart bookkeeping. Sleep does not use it; it calls
// unix.Nanosleep directly.
func RawSyscall6NoRetry(trap, a1, a2, a3, a4, a5, a6 uintptr) (uintptr, unix.Errno) {
	r1, _, errno := unix.Syscall6(trap, a1, a2, a3, a4, a5, a6)
	return r1, errno
}

// Gettid returns the calling OS thread's kernel task id. Every Thread
// descriptor's identity is stamped with this value at start-barrier
// time.
func Gettid() int32 {
	return int32(unix.Gettid())
}

// Tgkill delivers signal sig to task tid within the calling process's
// thread group, the mechanism asynchronous cancellation uses to
// interrupt a specific target thread rather than the whole process.
func Tgkill(tid int32, sig unix.Signal) error {
	return unix.Tgkill(unix.Getpid(), int(tid), sig)
}

// Sleep issues a single nanosleep(2) call for d. If a signal interrupts
// it before the full duration elapses, it returns the kernel-reported
// remaining duration alongside unix.EINTR instead of restarting the
// call itself, so a caller sitting in its own retry loop (to recheck
// cancellation, for instance) gets control back rather than the
// interruption being silently absorbed here.
func Sleep(d time.Duration) (time.Duration, error) {
	ts := unix.NsecToTimespec(d.Nanoseconds())
	rem := unix.Timespec{}
	err := unix.Nanosleep(&ts, &rem)
	if err == unix.EINTR {
		return time.Duration(rem.Nano()), unix.EINTR
	}
	return 0, err
}
