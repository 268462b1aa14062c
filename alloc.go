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
	"unsafe"

	"github.com/ljanyst/thread-bites/internal/hostsys"
)

// procAllocator is the process-wide host allocator. The runtime
// itself never needs to allocate through it — thread descriptors and
// stacks are ordinary Go values and mmap regions — but it is exposed
// for embedding callers, and the demo CLI's "stats" subcommand prints
// its counters.
var procAllocator = hostsys.NewAllocator()

// Allocate reserves size bytes from the process-wide host allocator.
func Allocate(size uintptr) (uintptr, error) {
	p, err := procAllocator.Allocate(size)
	return uintptr(p), err
}

// Free releases a block obtained from Allocate.
func Free(p uintptr) {
	procAllocator.Free(unsafe.Pointer(p)) //nolint:govet // round-trips a handle this package itself minted
}

// AllocatorStats reports total bytes reserved from the kernel and
// bytes currently handed out.
func AllocatorStats() (total, used uint64) {
	return procAllocator.Stats()
}
