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

// Errno is a small integer error code, modeled after the standard
// library's syscall.Errno: a named integer type that itself implements
// error, so call sites write ordinary `if err != nil` /
// `errors.Is(err, thread.EBusy)` checks.
type Errno int

const (
	// EInvalidArgument: malformed attributes, unknown enum values,
	// locking a protect mutex whose ceiling is below the caller's
	// effective priority, rwlock destroy while held.
	EInvalidArgument Errno = iota + 1
	// EResourceExhausted: stack mapping failed, descriptor allocation
	// failed, no free TLS key.
	EResourceExhausted
	// EBusy: try-lock on an already-held mutex/rwlock, destroy on a
	// held mutex.
	EBusy
	// EDeadlock: error-check re-lock by the owner, self-join.
	EDeadlock
	// EPermission: unlock by a non-owner (error-check, recursive,
	// inherit, protect).
	EPermission
	// EWouldBlock: no operation in this package currently returns it;
	// the try-operations report EBusy.
	EWouldBlock
)

var errnoText = map[Errno]string{
	EInvalidArgument:   "invalid argument",
	EResourceExhausted: "resource exhausted",
	EBusy:              "resource busy",
	EDeadlock:          "operation would deadlock",
	EPermission:        "operation not permitted",
	EWouldBlock:        "operation would block",
}

func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return "unknown thread error"
}

// Is lets errors.Is(err, thread.EBusy) match both a bare Errno value and
// one wrapped by fmt.Errorf("...: %w", err).
func (e Errno) Is(target error) bool {
	t, ok := target.(Errno)
	return ok && t == e
}
