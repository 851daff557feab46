// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package utilds

import "sync"

// WorkQueue runs workFn on every enqueued item, in order, on a single worker goroutine
// (started lazily by the first Enqueue).
type WorkQueue[T any] struct {
	lock     sync.Mutex
	cond     *sync.Cond
	queue    []T
	closed   bool
	started  bool
	wg       sync.WaitGroup
	workFn   func(T)
	enqueued int64
	finished int64
}

func NewWorkQueue[T any](workFn func(T)) *WorkQueue[T] {
	wq := &WorkQueue[T]{
		workFn: workFn,
	}
	wq.cond = sync.NewCond(&wq.lock)
	return wq
}

// Enqueue returns false if the queue has been closed.
func (wq *WorkQueue[T]) Enqueue(item T) bool {
	wq.lock.Lock()
	defer wq.lock.Unlock()
	if wq.closed {
		return false
	}
	if !wq.started {
		wq.started = true
		wq.wg.Add(1)
		go wq.worker()
	}
	wq.queue = append(wq.queue, item)
	wq.enqueued++
	wq.cond.Broadcast()
	return true
}

func (wq *WorkQueue[T]) worker() {
	defer wq.wg.Done()
	for {
		wq.lock.Lock()
		for len(wq.queue) == 0 && !wq.closed {
			wq.cond.Wait()
		}
		if wq.closed && len(wq.queue) == 0 {
			wq.lock.Unlock()
			return
		}
		item := wq.queue[0]
		wq.queue = wq.queue[1:]
		wq.lock.Unlock()

		wq.workFn(item)

		wq.lock.Lock()
		wq.finished++
		wq.cond.Broadcast()
		wq.lock.Unlock()
	}
}

// Flush blocks until every item enqueued before the call has been processed (items dropped by
// an immediate Close count as processed).  Must not be called from workFn.
func (wq *WorkQueue[T]) Flush() {
	wq.lock.Lock()
	defer wq.lock.Unlock()
	target := wq.enqueued
	for wq.finished < target {
		wq.cond.Wait()
	}
}

func (wq *WorkQueue[T]) Len() int {
	wq.lock.Lock()
	defer wq.lock.Unlock()
	return len(wq.queue)
}

func (wq *WorkQueue[T]) Close(immediate bool) {
	wq.lock.Lock()
	defer wq.lock.Unlock()
	wq.closed = true
	if immediate {
		wq.finished += int64(len(wq.queue))
		wq.queue = nil
	}
	wq.cond.Broadcast()
}

func (wq *WorkQueue[T]) IsClosed() bool {
	wq.lock.Lock()
	defer wq.lock.Unlock()
	return wq.closed
}

// Wait waits for the worker to exit (after Close).
func (wq *WorkQueue[T]) Wait() {
	wq.wg.Wait()
}
