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
	"golang.org/x/sys/unix"

	"github.com/ljanyst/thread-bites/internal/futex"
)

// Output is the formatted-output facility: it serializes write(2)
// calls to a single file descriptor under its own lock. It implements
// io.Writer so callers compose it with fmt.Fprintf/zerolog rather than
// a hand-rolled formatter.
type Output struct {
	fd   int
	lock futex.BinaryLock
}

// NewOutput returns an Output writing to the given file descriptor.
func NewOutput(fd int) *Output {
	return &Output{fd: fd}
}

// Write implements io.Writer, retrying on short writes and EINTR the
// way a well-behaved write(2) wrapper must.
func (o *Output) Write(p []byte) (int, error) {
	o.lock.Lock()
	defer o.lock.Unlock()

	written := 0
	for written < len(p) {
		n, err := unix.Write(o.fd, p[written:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return written, err
		}
		written += n
	}
	return written, nil
}

// Stdout is the process-wide diagnostic sink, fd 1.
var Stdout = NewOutput(1)
