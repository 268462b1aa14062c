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
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/ljanyst/thread-bites/internal/hostsys"
)

// log is the structured lifecycle/diagnostic sink. It writes through
// the host output collaborator rather than os.Stdout directly, so
// every byte this runtime ever emits — user-facing or diagnostic —
// goes through the same lock-guarded write(2) path. It is never
// invoked from a primitive's hot path (mutex lock/unlock, futex
// wait/wake, spinlock acquire).
var log = zerolog.New(hostsys.Stdout).With().Timestamp().Str("component", "thread").Logger()

// Fatal logs a structured fatal-level event carrying a go-spew dump of
// v, then terminates the process via the raw exit syscall. Used for
// registry corruption and other states the runtime's own invariants
// rule out. It deliberately does not use zerolog's own Fatal()
// convenience, which calls os.Exit(1) itself before this function's
// chosen exit code or the go-spew dump are guaranteed to have reached
// the output collaborator.
func Fatal(msg string, v any) {
	log.WithLevel(zerolog.FatalLevel).Str("dump", spew.Sdump(v)).Msg(msg)
	unix.Exit(2)
}
