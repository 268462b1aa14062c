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
	"time"

	"github.com/ljanyst/thread-bites/internal/hostsys"
)

// registry is the process-wide thread state: the set of live thread
// descriptors keyed by kernel tid, its guarding lock, and lazy
// main-thread bootstrap via Once. The TLS key table lives separately
// in tls.go under its own lock.
type registry struct {
	lock  spinlock
	byTid map[int32]*Thread

	bootstrap Once
	main      *Thread
}

var procRegistry = &registry{byTid: make(map[int32]*Thread)}

// ensureBootstrap makes the calling OS thread the "main" descriptor the
// first time any runtime operation touches the registry, idempotently
// via Once so concurrent first callers still observe a single bootstrap.
func ensureBootstrap() *Thread {
	procRegistry.bootstrap.Do(func() {
		hostsys.InstallCancelHandler()
		t := newThreadDescriptor(nil)
		t.tid = hostsys.Gettid()
		t.joinStatusWord = int32(joinableRunning)
		t.isMain = true
		procRegistry.main = t
		procRegistry.register(t)
		log.Debug().Int32("tid", t.tid).Msg("main thread bootstrapped")
	})
	return procRegistry.main
}

func (r *registry) register(t *Thread) {
	r.lock.Lock()
	r.byTid[t.tid] = t
	r.lock.Unlock()
}

func (r *registry) unregister(t *Thread) {
	r.lock.Lock()
	delete(r.byTid, t.tid)
	r.lock.Unlock()
}

func (r *registry) lookup(tid int32) *Thread {
	r.lock.Lock()
	t := r.byTid[tid]
	r.lock.Unlock()
	return t
}

func (r *registry) count() int {
	r.lock.Lock()
	n := len(r.byTid)
	r.lock.Unlock()
	return n
}

// Teardown busy-polls the registry until the calling thread is the only
// member left, then drops the bootstrap state so a later operation can
// re-initialize. It does not force-cancel outstanding joinable threads;
// that remains on the caller.
func Teardown() {
	self := Self()
	for procRegistry.count() > 1 {
		time.Sleep(time.Millisecond)
	}
	if self != nil {
		procRegistry.unregister(self)
	}
	hostsys.RemoveCancelHandler()
	procRegistry.bootstrap = Once{}
	procRegistry.main = nil
	log.Debug().Msg("registry torn down")
}
