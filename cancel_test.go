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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCancelDuringCondWaitReacquiresMutexAndExitsCanceled(t *testing.T) {
	var m Mutex
	cond := NewCond()
	waiting := make(chan struct{})

	th, err := Create(nil, func(any) any {
		require.NoError(t, m.Lock())
		CleanupPush(func(any) { _ = m.Unlock() }, nil)
		close(waiting)
		_ = cond.Wait(&m)
		CleanupPop(true)
		return nil
	}, nil)
	require.NoError(t, err)

	<-waiting
	time.Sleep(5 * time.Millisecond) // let it park in cond.Wait
	require.NoError(t, Cancel(th))

	retval, err := Join(th)
	require.NoError(t, err)
	require.True(t, Canceled(retval))

	// Wait's cleanup handler must have reacquired the mutex, and the
	// thread's own cleanup handler then released it, so it is not left
	// held by the canceled thread.
	require.NoError(t, m.TryLock())
	require.NoError(t, m.Unlock())
}

func TestDeferredCancelOnlyFiresAtCancellationPoint(t *testing.T) {
	var m Mutex
	require.NoError(t, m.Lock())

	reachedPoint := make(chan struct{})
	th, err := Create(nil, func(any) any {
		// Busy work with no cancellation point: deferred cancellation
		// must not interrupt this.
		sum := 0
		for i := 0; i < 1_000_000; i++ {
			sum += i
		}
		close(reachedPoint)
		_ = m.Lock() // cancellation point: contended, since the test holds m
		_ = m.Unlock()
		return sum
	}, nil)
	require.NoError(t, err)

	<-reachedPoint
	require.NoError(t, Cancel(th))
	require.NoError(t, m.Unlock())

	retval, err := Join(th)
	require.NoError(t, err)
	require.True(t, Canceled(retval))
}

func TestTestCancelIsExplicitCancellationPoint(t *testing.T) {
	th, err := Create(nil, func(any) any {
		for {
			TestCancel()
			time.Sleep(time.Millisecond)
		}
	}, nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, Cancel(th))

	retval, err := Join(th)
	require.NoError(t, err)
	require.True(t, Canceled(retval))
}
