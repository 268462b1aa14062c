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
	"testing"

	"github.com/stretchr/testify/require"
)

type testBoundedBuffer struct {
	mu       Mutex
	notFull  *Cond
	notEmpty *Cond
	items    []int
	capacity int
}

func newTestBoundedBuffer(capacity int) *testBoundedBuffer {
	return &testBoundedBuffer{capacity: capacity, notFull: NewCond(), notEmpty: NewCond()}
}

func (b *testBoundedBuffer) put(v int) error {
	if err := b.mu.Lock(); err != nil {
		return err
	}
	defer b.mu.Unlock()
	for len(b.items) == b.capacity {
		if err := b.notFull.Wait(&b.mu); err != nil {
			return err
		}
	}
	b.items = append(b.items, v)
	b.notEmpty.Signal()
	return nil
}

func (b *testBoundedBuffer) take() (int, error) {
	if err := b.mu.Lock(); err != nil {
		return 0, err
	}
	defer b.mu.Unlock()
	for len(b.items) == 0 {
		if err := b.notEmpty.Wait(&b.mu); err != nil {
			return 0, err
		}
	}
	v := b.items[0]
	b.items = b.items[1:]
	b.notFull.Signal()
	return v, nil
}

func TestCondBoundedBufferDeliversEveryItemExactlyOnce(t *testing.T) {
	const producers, consumers, total = 2, 2, 2000
	buf := newTestBoundedBuffer(4)
	var produced, consumed int64
	var seen [total + 1]int32

	handles := make([]*Thread, 0, producers+consumers)
	for i := 0; i < producers; i++ {
		th, err := Create(nil, func(any) any {
			for {
				n := atomic.AddInt64(&produced, 1)
				if n > total {
					return nil
				}
				require.NoError(t, buf.put(int(n)))
			}
		}, nil)
		require.NoError(t, err)
		handles = append(handles, th)
	}
	for i := 0; i < consumers; i++ {
		th, err := Create(nil, func(any) any {
			for atomic.LoadInt64(&consumed) < total {
				v, err := buf.take()
				if err != nil {
					return err
				}
				atomic.AddInt32(&seen[v], 1)
				atomic.AddInt64(&consumed, 1)
			}
			return nil
		}, nil)
		require.NoError(t, err)
		handles = append(handles, th)
	}
	for _, th := range handles {
		_, err := Join(th)
		require.NoError(t, err)
	}

	for v := 1; v <= total; v++ {
		require.Equal(t, int32(1), seen[v], "item %d delivered %d times", v, seen[v])
	}
}

func TestCondBroadcastWakesEveryWaiter(t *testing.T) {
	const waiters = 5
	var mu Mutex
	cond := NewCond()
	ready := false
	var woken int32

	done := make(chan struct{}, waiters)
	for i := 0; i < waiters; i++ {
		_, err := Create(nil, func(any) any {
			require.NoError(t, mu.Lock())
			for !ready {
				require.NoError(t, cond.Wait(&mu))
			}
			require.NoError(t, mu.Unlock())
			atomic.AddInt32(&woken, 1)
			done <- struct{}{}
			return nil
		}, nil)
		require.NoError(t, err)
	}

	require.NoError(t, mu.Lock())
	ready = true
	require.NoError(t, mu.Unlock())
	cond.Broadcast()

	for i := 0; i < waiters; i++ {
		<-done
	}
	require.Equal(t, int32(waiters), atomic.LoadInt32(&woken))
}
