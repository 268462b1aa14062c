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
	"time"

	"github.com/stretchr/testify/require"
)

func TestOnceDoRunsInitializerExactlyOnceUnderContention(t *testing.T) {
	const racers = 16
	var once Once
	var runs int32
	var sum int64

	done := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		_, err := Create(nil, func(any) any {
			once.Do(func() {
				atomic.AddInt32(&runs, 1)
				atomic.AddInt64(&sum, 1)
			})
			done <- struct{}{}
			return nil
		}, nil)
		require.NoError(t, err)
	}
	for i := 0; i < racers; i++ {
		<-done
	}

	require.Equal(t, int32(1), atomic.LoadInt32(&runs))
	require.Equal(t, int64(1), atomic.LoadInt64(&sum))
}

func TestOnceDoIsIdempotentAcrossSeparateCalls(t *testing.T) {
	var once Once
	var runs int32
	for i := 0; i < 5; i++ {
		once.Do(func() { atomic.AddInt32(&runs, 1) })
	}
	require.Equal(t, int32(1), runs)
}

func TestOnceAbandonedByCancelledInitializerIsRerunByNextCaller(t *testing.T) {
	var once Once
	var attempts int32
	enteredFirst := make(chan struct{})

	first, err := Create(nil, func(any) any {
		once.Do(func() {
			atomic.AddInt32(&attempts, 1)
			close(enteredFirst)
			for {
				TestCancel()
				time.Sleep(time.Millisecond)
			}
		})
		return nil
	}, nil)
	require.NoError(t, err)

	<-enteredFirst
	require.NoError(t, Cancel(first))
	retval, err := Join(first)
	require.NoError(t, err)
	require.True(t, Canceled(retval))

	// The cancelled initializer's cleanup handler must have reset the
	// once to uninitialized; a fresh caller reruns fn to completion.
	ranSecond := make(chan struct{})
	second, err := Create(nil, func(any) any {
		once.Do(func() {
			atomic.AddInt32(&attempts, 1)
		})
		close(ranSecond)
		return nil
	}, nil)
	require.NoError(t, err)
	<-ranSecond
	_, err = Join(second)
	require.NoError(t, err)

	require.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestOnceWaiterBlockedOnRunningInitCanBeCancelled(t *testing.T) {
	var once Once
	initiatorEntered := make(chan struct{})
	releaseInitiator := make(chan struct{})

	_, err := Create(nil, func(any) any {
		once.Do(func() {
			close(initiatorEntered)
			<-releaseInitiator
		})
		return nil
	}, nil)
	require.NoError(t, err)
	<-initiatorEntered

	waiter, err := Create(nil, func(any) any {
		once.Do(func() { t.Fatal("waiter must not run the initializer") })
		return nil
	}, nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond) // let the waiter park on the once word
	require.NoError(t, Cancel(waiter))

	retval, err := Join(waiter)
	require.NoError(t, err)
	require.True(t, Canceled(retval))

	close(releaseInitiator)
}
