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

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue[int](5, nil)

	for i := 1; i <= 5; i++ {
		require.True(t, q.Push(i))
	}

	for i := 1; i <= 5; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestQueuePushBlocksUntilPop(t *testing.T) {
	t.Parallel()

	q := NewQueue[int](1, nil)
	require.True(t, q.Push(1))

	unblocked := make(chan struct{})

	go func() {
		q.Push(2)
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("Push returned on a full queue")
	case <-time.After(50 * time.Millisecond):
	}

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after Pop")
	}
}

func TestQueuePopFailsWhenStopped(t *testing.T) {
	t.Parallel()

	q := NewQueue[int](5, nil)
	require.True(t, q.Push(1))

	q.Stop()

	// Stopped fails Pop immediately, even with buffered items.
	_, ok := q.Pop()
	assert.False(t, ok)
	assert.True(t, q.IsStopped())

	// Restart preserves the buffered items.
	q.Restart()

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestQueueQuitIsTerminal(t *testing.T) {
	t.Parallel()

	released := 0
	q := NewQueue[int](5, func(int) { released++ })

	require.True(t, q.Push(1))
	require.True(t, q.Push(2))

	q.Quit()
	assert.Equal(t, 2, released, "Quit must release buffered items")

	assert.False(t, q.Push(3))

	_, ok := q.Pop()
	assert.False(t, ok)

	// Restart must not resurrect a quit queue.
	q.Restart()

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueueQuitUnblocksWaiters(t *testing.T) {
	t.Parallel()

	q := NewQueue[int](1, nil)
	require.True(t, q.Push(1))

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		assert.False(t, q.Push(2))
	}()

	go func() {
		defer wg.Done()

		// Let the pusher win the single slot race first.
		time.Sleep(20 * time.Millisecond)
		q.Quit()
	}()

	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Quit did not unblock the pusher")
	}
}

func TestQueueEmptyKeepsState(t *testing.T) {
	t.Parallel()

	released := 0
	q := NewQueue[int](5, func(int) { released++ })

	require.True(t, q.Push(1))
	require.True(t, q.Push(2))

	q.Empty()
	assert.Equal(t, 2, released)
	assert.False(t, q.IsStopped())

	// Still running, so transfer keeps working.
	require.True(t, q.Push(3))

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, v)
}
