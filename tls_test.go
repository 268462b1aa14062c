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

func TestSetGetSpecificIsIdentityPerThread(t *testing.T) {
	key, err := KeyCreate(nil)
	require.NoError(t, err)
	defer func() { _ = KeyDelete(key) }()

	results := make(chan any, 2)
	for _, v := range []any{"a", "b"} {
		v := v
		_, err := Create(nil, func(any) any {
			require.NoError(t, SetSpecific(key, v))
			results <- GetSpecific(key)
			return nil
		}, nil)
		require.NoError(t, err)
	}
	got := map[any]bool{<-results: true, <-results: true}
	require.True(t, got["a"])
	require.True(t, got["b"])
}

func TestGetSpecificAfterKeyDeleteReturnsNilEverywhere(t *testing.T) {
	key, err := KeyCreate(nil)
	require.NoError(t, err)

	done := make(chan struct{})
	_, err = Create(nil, func(any) any {
		require.NoError(t, SetSpecific(key, 42))
		close(done)
		return nil
	}, nil)
	require.NoError(t, err)
	<-done

	require.NoError(t, KeyDelete(key))

	after := make(chan any, 1)
	_, err = Create(nil, func(any) any {
		after <- GetSpecific(key)
		return nil
	}, nil)
	require.NoError(t, err)
	require.Nil(t, <-after)
}

func TestKeyCreateExhaustion(t *testing.T) {
	saved := MaxKeys
	MaxKeys = 2
	tlsKeys.slots = nil
	defer func() {
		MaxKeys = saved
		tlsKeys.slots = nil
	}()

	k1, err := KeyCreate(nil)
	require.NoError(t, err)
	k2, err := KeyCreate(nil)
	require.NoError(t, err)
	_, err = KeyCreate(nil)
	require.ErrorIs(t, err, EResourceExhausted)

	require.NoError(t, KeyDelete(k1))
	require.NoError(t, KeyDelete(k2))
}

func TestDestructorRunsOnThreadExit(t *testing.T) {
	ran := make(chan any, 1)
	key, err := KeyCreate(func(v any) { ran <- v })
	require.NoError(t, err)
	defer func() { _ = KeyDelete(key) }()

	_, err = Create(nil, func(any) any {
		require.NoError(t, SetSpecific(key, "cleanup-me"))
		return nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "cleanup-me", <-ran)
}
