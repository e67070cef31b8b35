// Frontline Perception System
// Copyright (C) 2020-2025 TurbineOne LLC
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package compare

import "sync"

// queueState tracks the lifecycle of a Queue.
type queueState int

const (
	// queueRunning allows blocking transfer.
	queueRunning queueState = iota

	// queueStopped means the producer has temporarily run dry; consumers
	// must not block forever waiting for it.
	queueStopped

	// queueQuit is terminal and irreversible. All current and future
	// blocking calls fail immediately.
	queueQuit
)

// Queue is a bounded FIFO between exactly one producer and one consumer
// goroutine. Capacity is fixed at construction. The release callback frees
// items the queue drops on behalf of the owner (Empty, Quit drains).
type Queue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	items []T
	head  int
	count int

	state   queueState
	release func(T)
}

// NewQueue returns a Queue with the given fixed capacity. release may be
// nil when dropped items need no cleanup.
func NewQueue[T any](capacity int, release func(T)) *Queue[T] {
	q := &Queue[T]{
		items:   make([]T, capacity),
		release: release,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)

	return q
}

// Push blocks while the queue is full and not quit. It reports false once
// the queue has quit; the caller must release the abandoned item itself.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.items) && q.state != queueQuit {
		q.notFull.Wait()
	}

	if q.state == queueQuit {
		return false
	}

	q.items[(q.head+q.count)%len(q.items)] = item
	q.count++

	q.notEmpty.Signal()

	return true
}

// Pop blocks while the queue is empty and running. It reports false
// immediately when the queue is stopped (the consumer must treat this as a
// flush/EOF signal) or quit.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T

	for q.count == 0 && q.state == queueRunning {
		q.notEmpty.Wait()
	}

	if q.state != queueRunning {
		return zero, false
	}

	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--

	q.notFull.Signal()

	return item, true
}

// Stop transitions Running to Stopped, signalling "no more data for now"
// without discarding buffered items.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state == queueRunning {
		q.state = queueStopped
		q.wakeAll()
	}
}

// Restart transitions Stopped back to Running.
func (q *Queue[T]) Restart() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state == queueStopped {
		q.state = queueRunning
		q.wakeAll()
	}
}

// Quit transitions to the terminal state and wakes every waiter. Buffered
// items are released.
func (q *Queue[T]) Quit() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.state = queueQuit
	q.drain()
	q.wakeAll()
}

// Empty drains and discards all buffered items without changing state.
// Used to invalidate stale data before a seek.
func (q *Queue[T]) Empty() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.drain()
	q.notFull.Broadcast()
}

// IsStopped reports whether the queue is currently stopped.
func (q *Queue[T]) IsStopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.state == queueStopped
}

func (q *Queue[T]) drain() {
	var zero T

	for q.count > 0 {
		item := q.items[q.head]
		q.items[q.head] = zero
		q.head = (q.head + 1) % len(q.items)
		q.count--

		if q.release != nil {
			q.release(item)
		}
	}

	q.head = 0
}

func (q *Queue[T]) wakeAll() {
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}
