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

	"github.com/stretchr/testify/require"
)

func TestNormalMutexCountsCorrectlyUnderContention(t *testing.T) {
	const threads, increments = 8, 10000
	var m Mutex
	counter := 0

	handles := make([]*Thread, threads)
	for i := range handles {
		th, err := Create(nil, func(any) any {
			for j := 0; j < increments; j++ {
				require.NoError(t, m.Lock())
				counter++
				require.NoError(t, m.Unlock())
			}
			return nil
		}, nil)
		require.NoError(t, err)
		handles[i] = th
	}
	for _, th := range handles {
		_, err := Join(th)
		require.NoError(t, err)
	}
	require.Equal(t, threads*increments, counter)
}

func TestRecursiveMutexBalancedLockUnlock(t *testing.T) {
	m := NewMutex(MutexRecursive, ProtocolNone, 0)
	// Owner tracking needs a runtime thread: Self() is nil on a plain
	// test goroutine.
	th, err := Create(nil, func(any) any {
		for i := 0; i < 3; i++ {
			require.NoError(t, m.Lock())
		}
		require.Equal(t, int32(3), m.counter)
		for i := 0; i < 3; i++ {
			require.NoError(t, m.Unlock())
		}
		require.Equal(t, int32(0), m.counter)
		return nil
	}, nil)
	require.NoError(t, err)
	_, err = Join(th)
	require.NoError(t, err)
	require.NoError(t, m.Destroy())
}

func TestErrorCheckMutexRejectsSelfRelock(t *testing.T) {
	m := NewMutex(MutexErrorCheck, ProtocolNone, 0)
	th, err := Create(nil, func(any) any {
		require.NoError(t, m.Lock())
		require.ErrorIs(t, m.Lock(), EDeadlock)
		require.NoError(t, m.Unlock())
		return nil
	}, nil)
	require.NoError(t, err)
	_, err = Join(th)
	require.NoError(t, err)
}

func TestErrorCheckMutexRejectsForeignUnlock(t *testing.T) {
	m := NewMutex(MutexErrorCheck, ProtocolNone, 0)
	locked := make(chan struct{})
	release := make(chan struct{})
	owner, err := Create(nil, func(any) any {
		require.NoError(t, m.Lock())
		close(locked)
		<-release
		require.NoError(t, m.Unlock())
		return nil
	}, nil)
	require.NoError(t, err)
	<-locked

	errCh := make(chan error, 1)
	done := make(chan struct{})
	_, err = Create(nil, func(any) any {
		errCh <- m.Unlock()
		close(done)
		return nil
	}, nil)
	require.NoError(t, err)
	<-done
	require.ErrorIs(t, <-errCh, EPermission)
	close(release)
	_, err = Join(owner)
	require.NoError(t, err)
}

func TestTryLockFailsWhenHeld(t *testing.T) {
	var m Mutex
	require.NoError(t, m.Lock())
	require.ErrorIs(t, m.TryLock(), EBusy)
	require.NoError(t, m.Unlock())
	require.NoError(t, m.TryLock())
	require.NoError(t, m.Unlock())
}

func TestDestroyFailsWhileLocked(t *testing.T) {
	var m Mutex
	require.NoError(t, m.Lock())
	require.ErrorIs(t, m.Destroy(), EBusy)
	require.NoError(t, m.Unlock())
	require.NoError(t, m.Destroy())
}

func TestProtectMutexRejectsPriorityAboveCeiling(t *testing.T) {
	m := NewMutex(MutexNormal, ProtocolProtect, 10)
	done := make(chan error, 1)
	_, err := Create(nil, func(any) any {
		self := Self()
		require.NoError(t, self.SetSchedParam(SchedFIFO, 20))
		done <- m.Lock()
		return nil
	}, nil)
	require.NoError(t, err)
	require.ErrorIs(t, <-done, EInvalidArgument)
}

func TestProtectMutexBoostsOwnerToCeiling(t *testing.T) {
	m := NewMutex(MutexNormal, ProtocolProtect, 50)
	var eff int32
	done := make(chan struct{})
	_, err := Create(nil, func(any) any {
		require.NoError(t, m.Lock())
		eff = Self().EffectivePriority()
		require.NoError(t, m.Unlock())
		close(done)
		return nil
	}, nil)
	require.NoError(t, err)
	<-done
	require.Equal(t, int32(50), eff)
}
