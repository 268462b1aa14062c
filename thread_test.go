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

func TestCreateJoinReturnsExitValue(t *testing.T) {
	th, err := Create(nil, func(arg any) any {
		return arg.(int) * 2
	}, 21)
	require.NoError(t, err)

	retval, err := Join(th)
	require.NoError(t, err)
	require.Equal(t, 42, retval)
}

func TestJoinDeliversToExactlyOneJoiner(t *testing.T) {
	th, err := Create(nil, func(any) any { return 1 }, nil)
	require.NoError(t, err)

	var successes int32
	done := make(chan struct{}, 2)
	joiner := func() {
		if _, err := Join(th); err == nil {
			atomic.AddInt32(&successes, 1)
		}
		done <- struct{}{}
	}
	go joiner()
	go joiner()
	<-done
	<-done
	require.Equal(t, int32(1), atomic.LoadInt32(&successes))
}

func TestJoinSelfIsDeadlock(t *testing.T) {
	errCh := make(chan error, 1)
	th, err := Create(nil, func(any) any {
		self := Self()
		_, joinErr := Join(self)
		errCh <- joinErr
		return nil
	}, nil)
	require.NoError(t, err)

	require.ErrorIs(t, <-errCh, EDeadlock)
	_, err = Join(th)
	require.NoError(t, err)
}

func TestJoinDetachedFails(t *testing.T) {
	attr := DefaultAttr()
	attr.DetachState = Detached
	th, err := Create(&attr, func(any) any {
		time.Sleep(5 * time.Millisecond)
		return nil
	}, nil)
	require.NoError(t, err)

	_, err = Join(th)
	require.ErrorIs(t, err, EInvalidArgument)
}

func TestDetachReclaimsAfterExit(t *testing.T) {
	th, err := Create(nil, func(any) any { return nil }, nil)
	require.NoError(t, err)

	for atomic.LoadUint32(&th.joinWord) != 0 {
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, Detach(th))
}

func TestEqualComparesByTid(t *testing.T) {
	th, err := Create(nil, func(any) any { return nil }, nil)
	require.NoError(t, err)
	_, err = Join(th)
	require.NoError(t, err)

	require.True(t, Equal(th, th))
	require.False(t, Equal(th, nil))
}

func TestExitSetsReturnValue(t *testing.T) {
	th, err := Create(nil, func(any) any {
		Exit("early")
		return "never reached"
	}, nil)
	require.NoError(t, err)

	retval, err := Join(th)
	require.NoError(t, err)
	require.Equal(t, "early", retval)
}

func TestCleanupHandlersRunLIFO(t *testing.T) {
	var order []int
	done := make(chan struct{})

	_, err := Create(nil, func(any) any {
		CleanupPush(func(any) { order = append(order, 1) }, nil)
		CleanupPush(func(any) { order = append(order, 2) }, nil)
		CleanupPush(func(any) { order = append(order, 3) }, nil)
		close(done)
		return nil
	}, nil)
	require.NoError(t, err)
	<-done
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, []int{3, 2, 1}, order)
}

func TestCleanupPopWithoutExecuteLeavesObservablesUnchanged(t *testing.T) {
	ran := false
	done := make(chan struct{})

	_, err := Create(nil, func(any) any {
		CleanupPush(func(any) { ran = true }, nil)
		CleanupPop(false)
		close(done)
		return nil
	}, nil)
	require.NoError(t, err)
	<-done
	time.Sleep(10 * time.Millisecond)
	require.False(t, ran)
}
