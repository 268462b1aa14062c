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

// Command tbthreadctl drives the runtime through a handful of
// concurrency scenarios, as a smoke test a human can run instead of
// the unit suite.
package main

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	cli "gopkg.in/urfave/cli.v1"

	tb "github.com/ljanyst/thread-bites"
)

func main() {
	app := cli.NewApp()
	app.Name = "tbthreadctl"
	app.Usage = "exercise the thread-bites runtime's scenarios"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "TOML file of runtime tunables",
		},
	}
	app.Before = func(c *cli.Context) error {
		_, err := tb.LoadConfig(c.String("config"))
		return err
	}
	app.Commands = []cli.Command{
		{Name: "counter", Usage: "scenario 1: 8 threads, normal mutex, 100k increments each", Action: runCounter},
		{Name: "recursive", Usage: "scenario 2: balanced recursive-mutex lock/unlock", Action: runRecursive},
		{Name: "rwlock", Usage: "scenario 3: writer preference under contention", Action: runRWLock},
		{Name: "bounded-buffer", Usage: "scenario 4: producer/consumer over a condvar", Action: runBoundedBuffer},
		{Name: "cancel-cond", Usage: "scenario 5: cancel a thread parked in cond_wait", Action: runCancelCond},
		{Name: "priority-inherit", Usage: "scenario 6: priority-inherit progress bound", Action: runPriorityInherit},
		{Name: "stats", Usage: "print host allocator statistics", Action: runStats},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCounter(c *cli.Context) error {
	const threads, increments = 8, 100000
	var counter int
	m := &tb.Mutex{}

	handles := make([]*tb.Thread, 0, threads)
	for i := 0; i < threads; i++ {
		th, err := tb.Create(nil, func(any) any {
			for j := 0; j < increments; j++ {
				if err := m.Lock(); err != nil {
					return err
				}
				counter++
				_ = m.Unlock()
			}
			return nil
		}, nil)
		if err != nil {
			return err
		}
		handles = append(handles, th)
	}
	for _, th := range handles {
		if _, err := tb.Join(th); err != nil {
			return err
		}
	}
	fmt.Printf("counter = %d (want %d)\n", counter, threads*increments)
	return nil
}

func runRecursive(c *cli.Context) error {
	m := tb.NewMutex(tb.MutexRecursive, tb.ProtocolNone, 0)
	run := func(any) any {
		for i := 0; i < 3; i++ {
			if err := m.Lock(); err != nil {
				return err
			}
		}
		for i := 0; i < 3; i++ {
			if err := m.Unlock(); err != nil {
				return err
			}
		}
		return nil
	}
	t1, err := tb.Create(nil, run, nil)
	if err != nil {
		return err
	}
	t2, err := tb.Create(nil, run, nil)
	if err != nil {
		return err
	}
	for _, th := range []*tb.Thread{t1, t2} {
		retval, err := tb.Join(th)
		if err != nil {
			return err
		}
		if runErr, ok := retval.(error); ok {
			return runErr
		}
	}
	fmt.Println("recursive mutex balanced lock/unlock: ok")
	return nil
}

func runRWLock(c *cli.Context) error {
	rw := &tb.RWMutex{}
	var order []string
	var mu tb.Mutex

	record := func(s string) {
		_ = mu.Lock()
		order = append(order, s)
		_ = mu.Unlock()
	}

	for i := 0; i < 4; i++ {
		if err := rw.RLock(); err != nil {
			return err
		}
	}

	writerDone := make(chan struct{})
	go func() {
		_, _ = tb.Create(nil, func(any) any {
			record("writer-blocked")
			if err := rw.WLock(); err != nil {
				return err
			}
			record("writer-acquired")
			_ = rw.WUnlock()
			close(writerDone)
			return nil
		}, nil)
	}()
	time.Sleep(10 * time.Millisecond)

	lateReader, err := tb.Create(nil, func(any) any {
		record("late-reader-blocked")
		if err := rw.RLock(); err != nil {
			return err
		}
		record("late-reader-acquired")
		return rw.RUnlock()
	}, nil)
	if err != nil {
		return err
	}

	for i := 0; i < 4; i++ {
		_ = rw.RUnlock()
	}
	<-writerDone
	if _, err := tb.Join(lateReader); err != nil {
		return err
	}
	fmt.Println("order:", order)
	return nil
}

type boundedBuffer struct {
	mu       tb.Mutex
	notFull  *tb.Cond
	notEmpty *tb.Cond
	items    []int
	capacity int
}

func newBoundedBuffer(capacity int) *boundedBuffer {
	b := &boundedBuffer{capacity: capacity}
	b.notFull = tb.NewCond()
	b.notEmpty = tb.NewCond()
	return b
}

func (b *boundedBuffer) put(v int) error {
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

func (b *boundedBuffer) take() (int, error) {
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

func runBoundedBuffer(c *cli.Context) error {
	const producers, consumers, total = 2, 2, 10000
	buf := newBoundedBuffer(4)
	var produced, consumed int64

	var g errgroup.Group
	for p := 0; p < producers; p++ {
		g.Go(func() error {
			th, err := tb.Create(nil, func(any) any {
				for {
					n := atomic.AddInt64(&produced, 1)
					if n > total {
						return nil
					}
					if err := buf.put(int(n)); err != nil {
						return err
					}
				}
			}, nil)
			if err != nil {
				return err
			}
			_, err = tb.Join(th)
			return err
		})
	}
	for k := 0; k < consumers; k++ {
		g.Go(func() error {
			th, err := tb.Create(nil, func(any) any {
				for atomic.LoadInt64(&consumed) < total {
					if _, err := buf.take(); err != nil {
						return err
					}
					atomic.AddInt64(&consumed, 1)
				}
				return nil
			}, nil)
			if err != nil {
				return err
			}
			_, err = tb.Join(th)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Printf("delivered %d items\n", atomic.LoadInt64(&consumed))
	return nil
}

func runCancelCond(c *cli.Context) error {
	var m tb.Mutex
	cond := tb.NewCond()

	th, err := tb.Create(nil, func(any) any {
		tb.SetCancelType(tb.CancelAsynchronous)
		if err := m.Lock(); err != nil {
			return err
		}
		_ = cond.Wait(&m)
		_ = m.Unlock()
		return nil
	}, nil)
	if err != nil {
		return err
	}
	time.Sleep(20 * time.Millisecond)
	if err := tb.Cancel(th); err != nil {
		return err
	}
	retval, err := tb.Join(th)
	if err != nil {
		return err
	}
	fmt.Println("canceled:", tb.Canceled(retval))
	return nil
}

func runPriorityInherit(c *cli.Context) error {
	m := tb.NewMutex(tb.MutexNormal, tb.ProtocolInherit, 0)
	acquired := make(chan time.Duration, 1)
	start := time.Now()

	low, err := tb.Create(nil, func(any) any {
		if err := m.Lock(); err != nil {
			return err
		}
		time.Sleep(50 * time.Millisecond)
		return m.Unlock()
	}, nil)
	if err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)

	medium, err := tb.Create(nil, func(any) any {
		deadline := time.Now().Add(40 * time.Millisecond)
		for time.Now().Before(deadline) {
			runtime.Gosched()
		}
		return nil
	}, nil)
	if err != nil {
		return err
	}

	high, err := tb.Create(nil, func(any) any {
		if err := m.Lock(); err != nil {
			return err
		}
		acquired <- time.Since(start)
		return m.Unlock()
	}, nil)
	if err != nil {
		return err
	}

	elapsed := <-acquired
	if _, err := tb.Join(low); err != nil {
		return err
	}
	if _, err := tb.Join(medium); err != nil {
		return err
	}
	if _, err := tb.Join(high); err != nil {
		return err
	}
	fmt.Printf("high priority thread acquired after %s\n", elapsed)
	return nil
}

func runStats(c *cli.Context) error {
	total, used := tb.AllocatorStats()
	fmt.Printf("allocator: total=%d used=%d\n", total, used)
	return nil
}
