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
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// CancelSignal is the dedicated signal Cancel sends to a target task,
// for both deferred and asynchronous cancellation types.
// SIGUSR1 is chosen over an actual RT signal (SIGRTMIN..SIGRTMAX)
// because Go's runtime reserves most of the RT signal range for its own
// preemption and os/signal bookkeeping; SIGUSR1 is conventionally free
// for application use and is explicitly safe to route through
// os/signal.
const CancelSignal = unix.SIGUSR1

var cancelSignalCh chan os.Signal

// InstallCancelHandler registers the cancellation signal handler at
// process init.
//
// A Go process cannot run arbitrary user code inside a true signal
// handler the way a C program can (the runtime's own sigtramp gets
// first refusal on every signal, and only async-signal-safe runtime
// code may run there), so cancellation delivery degrades to: checked
// at every blocking syscall once interrupted. This installer's only
// job, then, is to (a) stop
// the signal's default action (terminate the process) by registering
// *some* handler for it, and (b) guarantee that any kernel task
// blocked in a raw syscall — in practice, this module's futex.Wait —
// is interrupted (EINTR) by the signal the instant tgkill delivers it,
// so that task's own retry loop observes the pending-cancel flag
// promptly instead of only at its next scheduled cancellation point.
func InstallCancelHandler() {
	if cancelSignalCh != nil {
		return
	}
	cancelSignalCh = make(chan os.Signal, 64)
	signal.Notify(cancelSignalCh, CancelSignal)
	go func() {
		for range cancelSignalCh {
			// Intentionally empty: the signal's only job was to
			// interrupt a blocking syscall on its target task; the
			// actual cancellation bookkeeping happens in that task's
			// own cancellation-point checks.
		}
	}()
}

// RemoveCancelHandler reverts InstallCancelHandler. The registry's
// teardown path calls it.
func RemoveCancelHandler() {
	if cancelSignalCh == nil {
		return
	}
	signal.Stop(cancelSignalCh)
	close(cancelSignalCh)
	cancelSignalCh = nil
}
