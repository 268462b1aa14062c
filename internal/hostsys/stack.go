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

import "golang.org/x/sys/unix"

// PageSize is the mmap growth granularity thread stacks are rounded up
// to.
const PageSize = pageSize

// MapStack anonymously maps a read/write region of at least size bytes,
// rounded up to a page, for use as a thread's stack. Real stack
// accounting: the bytes are never touched by this module's own
// goroutine-backed threads (the Go scheduler manages their actual
// machine stacks), but the mapping is kept alive and freed in lockstep
// with the thread descriptor, so resource accounting matches what a
// true clone(2)-based implementation would do.
func MapStack(size uintptr) ([]byte, error) {
	rounded := ((size + PageSize - 1) / PageSize) * PageSize
	return unix.Mmap(-1, 0, int(rounded), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_STACK)
}

// UnmapStack releases a mapping obtained from MapStack.
func UnmapStack(stack []byte) error {
	if stack == nil {
		return nil
	}
	return unix.Munmap(stack)
}
