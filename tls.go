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

// MaxKeys bounds the TLS key table, overridable at process start
// via Config.MaxTLSKeys.
var MaxKeys = 64

// maxDestructorIterations bounds destructor re-invocation on exit, so a
// destructor that re-sets its own or another key cannot loop forever.
const maxDestructorIterations = 4

// Destructor runs once per thread, per key, on thread exit, for any
// value a setspecific call left behind.
type Destructor func(value any)

// Key identifies a slot in the process-wide TLS key table.
type Key int

type keySlot struct {
	inUse      bool
	seq        uint32
	destructor Destructor
}

type tlsSlot struct {
	seq   uint32
	value any
}

// keyTable is the process-wide TLS key registry, guarded by its
// own spinlock independent of the thread registry's.
type keyTable struct {
	lock  spinlock
	slots []keySlot
}

var tlsKeys = keyTable{slots: make([]keySlot, 0)}

func ensureKeyTable() {
	if len(tlsKeys.slots) != MaxKeys {
		tlsKeys.slots = make([]keySlot, MaxKeys)
	}
}

func validKey(k Key) bool {
	return k >= 0 && int(k) < len(tlsKeys.slots)
}

// KeyCreate allocates a TLS slot with the given destructor (nil for
// none), returning resource-exhausted if every slot is in use.
func KeyCreate(destructor Destructor) (Key, error) {
	tlsKeys.lock.Lock()
	defer tlsKeys.lock.Unlock()
	ensureKeyTable()
	for i := range tlsKeys.slots {
		if !tlsKeys.slots[i].inUse {
			tlsKeys.slots[i].inUse = true
			tlsKeys.slots[i].seq++
			tlsKeys.slots[i].destructor = destructor
			return Key(i), nil
		}
	}
	return -1, EResourceExhausted
}

// KeyDelete marks k unused and bumps its sequence number, so that any
// thread's stale (sequence, value) pair for k reads back as null
// without the implementation ever touching that thread's memory.
func KeyDelete(k Key) error {
	tlsKeys.lock.Lock()
	defer tlsKeys.lock.Unlock()
	if !validKey(k) || !tlsKeys.slots[k].inUse {
		return EInvalidArgument
	}
	tlsKeys.slots[k].inUse = false
	tlsKeys.slots[k].seq++
	tlsKeys.slots[k].destructor = nil
	return nil
}

// SetSpecific writes value into the calling thread's slot for k,
// stamped with k's current sequence number.
func SetSpecific(k Key, value any) error {
	tlsKeys.lock.Lock()
	valid := validKey(k) && tlsKeys.slots[k].inUse
	var seq uint32
	if valid {
		seq = tlsKeys.slots[k].seq
	}
	tlsKeys.lock.Unlock()
	if !valid {
		return EInvalidArgument
	}
	t := Self()
	if t == nil {
		return EInvalidArgument
	}
	t.tls[k] = tlsSlot{seq: seq, value: value}
	return nil
}

// GetSpecific returns the calling thread's value for k, or nil if k
// was never set by this thread or has been deleted and recreated
// since (its stamped sequence no longer matches the table's).
func GetSpecific(k Key) any {
	if !validKey(k) {
		return nil
	}
	t := Self()
	if t == nil {
		return nil
	}
	tlsKeys.lock.Lock()
	seq := tlsKeys.slots[k].seq
	tlsKeys.lock.Unlock()
	slot := t.tls[k]
	if slot.seq != seq {
		return nil
	}
	return slot.value
}

// runTLSDestructors runs destructors for every still-valid, non-nil
// slot on t, iterating until a pass runs none or the iteration cap is
// reached.
func (t *Thread) runTLSDestructors() {
	for iter := 0; iter < maxDestructorIterations; iter++ {
		ran := false
		for i := range t.tls {
			slot := t.tls[i]
			if slot.value == nil {
				continue
			}
			t.tls[i] = tlsSlot{}

			tlsKeys.lock.Lock()
			valid := i < len(tlsKeys.slots) && tlsKeys.slots[i].inUse && tlsKeys.slots[i].seq == slot.seq
			destructor := tlsKeys.slots[i].destructor
			tlsKeys.lock.Unlock()

			if valid && destructor != nil {
				destructor(slot.value)
				ran = true
			}
		}
		if !ran {
			break
		}
	}
}
