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
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ljanyst/thread-bites/internal/futex"
)

// pageSize is the growth granularity for the arena: each time the free
// list runs dry we map at least one more page.
const pageSize = 4096

// usedBit marks a chunk as allocated, packed into the high bit of its
// size field to avoid a separate bool field per chunk header.
const usedBit = uint64(1) << 63

type memChunk struct {
	next *memChunk
	size uint64
}

const chunkHeaderSize = unsafe.Sizeof(memChunk{})

// Allocator is a thread-safe, mmap-backed free-list allocator standing
// in for the process heap allocator the runtime treats as an external
// collaborator. It grows its arena via anonymous mmap(2) rather than
// brk(2): brk is a single, process-wide cursor that cannot be grown
// concurrently from arbitrary goroutines without additional
// serialization this type already provides via its own lock; mmap
// needs no such shared cursor.
type Allocator struct {
	lock  futex.BinaryLock
	head  memChunk
	total uint64
	used  uint64
}

// NewAllocator returns a ready-to-use Allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Allocate returns size bytes, 8-byte aligned, or an error if the
// kernel refuses to grow the backing mapping.
func (a *Allocator) Allocate(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		size = 1
	}
	a.lock.Lock()
	defer a.lock.Unlock()

	allocSize := (((uint64(size) - 1) >> 3) << 3) + 8
	if allocSize < 16 {
		allocSize = 16
	}

	cursor := &a.head
	var chunk *memChunk
	for cursor.next != nil {
		chunk = cursor.next
		if chunk.size&usedBit == 0 && chunk.size >= allocSize {
			break
		}
		chunk = nil
		cursor = cursor.next
	}

	if chunk == nil {
		growBy := uint64(allocSize) + uint64(chunkHeaderSize)
		growBy = ((growBy + pageSize - 1) / pageSize) * pageSize

		region, err := unix.Mmap(-1, 0, int(growBy), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
		if err != nil {
			return nil, err
		}
		newChunk := (*memChunk)(unsafe.Pointer(&region[0]))
		newChunk.size = growBy - uint64(chunkHeaderSize)
		newChunk.next = nil

		tail := &a.head
		for tail.next != nil {
			tail = tail.next
		}
		tail.next = newChunk
		chunk = newChunk
		a.total += newChunk.size
	}

	if chunk.size > allocSize+uint64(chunkHeaderSize)+16 {
		newChunkAddr := uintptr(unsafe.Pointer(chunk)) + chunkHeaderSize + uintptr(allocSize)
		newChunk := (*memChunk)(unsafe.Pointer(newChunkAddr))
		newChunk.size = chunk.size - allocSize - uint64(chunkHeaderSize)
		newChunk.next = chunk.next
		chunk.next = newChunk
		chunk.size = allocSize
	}

	chunk.size |= usedBit
	a.used += chunk.size &^ usedBit
	dataAddr := uintptr(unsafe.Pointer(chunk)) + chunkHeaderSize
	return unsafe.Pointer(dataAddr), nil
}

// Free releases a block obtained from Allocate. Freeing nil is a no-op.
func (a *Allocator) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	chunk := (*memChunk)(unsafe.Pointer(uintptr(p) - chunkHeaderSize))
	a.used -= chunk.size &^ usedBit
	chunk.size &^= usedBit
}

// ZeroAllocate allocates n*size bytes, zeroed, as calloc(3) does.
func (a *Allocator) ZeroAllocate(n, size uintptr) (unsafe.Pointer, error) {
	total := n * size
	p, err := a.Allocate(total)
	if err != nil {
		return nil, err
	}
	buf := unsafe.Slice((*byte)(p), total)
	for i := range buf {
		buf[i] = 0
	}
	return p, nil
}

// Reallocate resizes the block at p to size bytes, preserving its
// content up to the smaller of the old and new sizes, as realloc(3)
// does. Passing a nil p behaves like Allocate.
func (a *Allocator) Reallocate(p unsafe.Pointer, size uintptr) (unsafe.Pointer, error) {
	if p == nil {
		return a.Allocate(size)
	}
	a.lock.Lock()
	oldChunk := (*memChunk)(unsafe.Pointer(uintptr(p) - chunkHeaderSize))
	oldSize := oldChunk.size &^ usedBit
	a.lock.Unlock()

	newPtr, err := a.Allocate(size)
	if err != nil {
		return nil, err
	}
	min := oldSize
	if uint64(size) < min {
		min = uint64(size)
	}
	src := unsafe.Slice((*byte)(p), min)
	dst := unsafe.Slice((*byte)(newPtr), min)
	copy(dst, src)
	a.Free(p)
	return newPtr, nil
}

// Stats reports the free-list's bookkeeping: total bytes reserved from
// the kernel and bytes currently handed out to callers.
func (a *Allocator) Stats() (total, used uint64) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.total, a.used
}
