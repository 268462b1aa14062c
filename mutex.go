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

	"github.com/ljanyst/thread-bites/internal/futex"
)

// MutexType selects the relock/unlock discipline.
type MutexType int32

const (
	MutexNormal MutexType = iota
	MutexErrorCheck
	MutexRecursive
)

// MutexProtocol selects the priority-boosting discipline.
type MutexProtocol int32

const (
	ProtocolNone MutexProtocol = iota
	ProtocolInherit
	ProtocolProtect
)

// Mutex is a normal, protocol-none mutex by zero value, with ceiling 0,
// matching sync.Mutex's zero-value-ready idiom (see DESIGN.md's OQ-2).
type Mutex struct {
	word uint32 // 0 free, 1 locked, 2 locked-with-waiters

	typ      MutexType
	protocol MutexProtocol
	ceiling  int32

	spin    spinlock
	owner   *Thread
	counter int32

	protectNode *mutexListNode
	inheritNode *mutexListNode

	inheritWaiters []*Thread
}

// NewMutex constructs a mutex with an explicit type/protocol/ceiling.
// ceiling is only meaningful for ProtocolProtect.
func NewMutex(typ MutexType, protocol MutexProtocol, ceiling int32) *Mutex {
	return &Mutex{typ: typ, protocol: protocol, ceiling: ceiling}
}

func (m *Mutex) addInheritWaiter(t *Thread) {
	m.spin.Lock()
	m.inheritWaiters = append(m.inheritWaiters, t)
	m.spin.Unlock()
}

func (m *Mutex) removeInheritWaiter(t *Thread) {
	m.spin.Lock()
	for i, w := range m.inheritWaiters {
		if w == t {
			m.inheritWaiters = append(m.inheritWaiters[:i], m.inheritWaiters[i+1:]...)
			break
		}
	}
	m.spin.Unlock()
}

// topWaiterPriority is read by Thread.recomputeEffectivePriority for
// every inherit mutex the thread holds.
func (m *Mutex) topWaiterPriority() int32 {
	m.spin.Lock()
	defer m.spin.Unlock()
	var top int32
	for _, w := range m.inheritWaiters {
		if p := w.EffectivePriority(); p > top {
			top = p
		}
	}
	return top
}

// Lock acquires m. Error-check relock by the owner
// fails with EDeadlock; recursive relock bumps the counter; a normal
// mutex relocked by its own owner blocks forever, matching real POSIX
// behavior for that case.
func (m *Mutex) Lock() error {
	self := Self()

	m.spin.Lock()
	owner := m.owner
	m.spin.Unlock()

	if self != nil && owner != nil && Equal(owner, self) {
		switch m.typ {
		case MutexRecursive:
			m.spin.Lock()
			m.counter++
			m.spin.Unlock()
			return nil
		case MutexErrorCheck:
			return EDeadlock
		}
	}

	if m.protocol == ProtocolProtect && self != nil {
		if self.EffectivePriority() > atomic.LoadInt32(&m.ceiling) {
			return EInvalidArgument
		}
	}

	published := false
	for {
		if atomic.CompareAndSwapUint32(&m.word, 0, 1) {
			break
		}
		atomic.CompareAndSwapUint32(&m.word, 1, 2)

		if m.protocol == ProtocolInherit && self != nil && !published {
			m.addInheritWaiter(self)
			published = true
			self.pushCleanup(func(any) { m.removeInheritWaiter(self) }, nil)

			m.spin.Lock()
			blocker := m.owner
			m.spin.Unlock()
			if blocker != nil {
				blocker.recomputeEffectivePriority()
			}
		}

		if self != nil {
			self.checkCancelPoint()
		}
		_ = futex.Wait(&m.word, 2)
	}

	if published {
		self.popCleanup(false)
		m.removeInheritWaiter(self)
	}

	m.spin.Lock()
	m.owner = self
	if m.typ == MutexRecursive {
		m.counter = 1
	}
	m.spin.Unlock()

	switch m.protocol {
	case ProtocolProtect:
		if self != nil {
			m.protectNode = self.protectMutexes.add(m)
			self.recomputeEffectivePriority()
		}
	case ProtocolInherit:
		if self != nil {
			m.inheritNode = self.inheritMutexes.add(m)
		}
	}
	return nil
}

// TryLock attempts a non-blocking acquire, returning EBusy if already
// held (except recursive relock by the owner, which always succeeds).
func (m *Mutex) TryLock() error {
	self := Self()

	m.spin.Lock()
	owner := m.owner
	m.spin.Unlock()
	if self != nil && owner != nil && Equal(owner, self) && m.typ == MutexRecursive {
		m.spin.Lock()
		m.counter++
		m.spin.Unlock()
		return nil
	}

	if !atomic.CompareAndSwapUint32(&m.word, 0, 1) {
		return EBusy
	}

	m.spin.Lock()
	m.owner = self
	if m.typ == MutexRecursive {
		m.counter = 1
	}
	m.spin.Unlock()

	switch m.protocol {
	case ProtocolProtect:
		if self != nil {
			m.protectNode = self.protectMutexes.add(m)
			self.recomputeEffectivePriority()
		}
	case ProtocolInherit:
		if self != nil {
			m.inheritNode = self.inheritMutexes.add(m)
		}
	}
	return nil
}

// Unlock releases m. Error-check, recursive, and any protocol besides
// none all require the caller to be the recorded owner, returning
// EPermission otherwise; a plain normal/none mutex performs no such
// check, keeping the fast path allocation- and branch-free.
func (m *Mutex) Unlock() error {
	self := Self()

	m.spin.Lock()
	owner := m.owner
	m.spin.Unlock()

	checked := m.typ != MutexNormal || m.protocol != ProtocolNone
	if checked {
		if owner == nil || self == nil || !Equal(owner, self) {
			return EPermission
		}
	}

	if m.typ == MutexRecursive {
		m.spin.Lock()
		m.counter--
		stillHeld := m.counter > 0
		m.spin.Unlock()
		if stillHeld {
			return nil
		}
	}

	switch m.protocol {
	case ProtocolProtect:
		if self != nil && m.protectNode != nil {
			self.protectMutexes.remove(m.protectNode)
			m.protectNode = nil
			self.recomputeEffectivePriority()
		}
	case ProtocolInherit:
		if self != nil && m.inheritNode != nil {
			self.inheritMutexes.remove(m.inheritNode)
			m.inheritNode = nil
			self.recomputeEffectivePriority()
		}
	}

	m.spin.Lock()
	m.owner = nil
	m.counter = 0
	m.spin.Unlock()

	prev := atomic.SwapUint32(&m.word, 0)
	if prev == 2 {
		_, _ = futex.Wake(&m.word, 1)
	}
	return nil
}

// Destroy reports EBusy if m is currently locked, otherwise succeeds.
func (m *Mutex) Destroy() error {
	if atomic.LoadUint32(&m.word) != 0 {
		return EBusy
	}
	return nil
}
