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

// Package futex wraps the Linux futex(2) syscall: compare-and-block on
// a 32-bit word, and wake up to N waiters on one. It is the one place
// in this module that blocks a kernel task waiting for another task's
// CAS to change a word, exposed as a general-purpose primitive rather
// than hardwired to any single caller.
package futex

import (
	"golang.org/x/sys/unix"
)

// Wait blocks the calling task while *addr == expected, unless woken by a
// corresponding Wake or interrupted. Spurious wakeups are allowed by the
// kernel and are not filtered here; callers must re-check their condition
// in a loop. Wait never returns an error for EAGAIN (the value had
// already changed) or EINTR (signal delivery): both simply mean "return
// to the caller's retry loop now."
func Wait(addr *uint32, expected uint32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(ptr(addr)),
		uintptr(unix.FUTEX_WAIT),
		uintptr(expected),
		0, 0, 0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	default:
		return errno
	}
}

// Wake wakes up to n tasks blocked in Wait on addr. It returns the number
// of tasks actually woken.
func Wake(addr *uint32, n int32) (int, error) {
	r1, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(ptr(addr)),
		uintptr(unix.FUTEX_WAKE),
		uintptr(uint32(n)),
		0, 0, 0,
	)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}
