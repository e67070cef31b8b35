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
	"golang.org/x/exp/constraints"
)

// rollingEstimator keeps the last windowSize samples in arrival order and
// reports their mean. The engine feeds it PTS deltas between strictly
// sequential decoded pictures (never across a repeat or a gap) and render
// latencies.
type rollingEstimator[T constraints.Signed] struct {
	window []T // arrival order, oldest first
	sum    T
	size   int
}

func newRollingEstimator[T constraints.Signed](size int) *rollingEstimator[T] {
	return &rollingEstimator[T]{
		window: make([]T, 0, size),
		size:   size,
	}
}

// Push adds a sample, evicting the oldest once the window is full.
func (e *rollingEstimator[T]) Push(sample T) {
	if len(e.window) == e.size {
		e.sum -= e.window[0]
		e.window = e.window[1:]
	}

	e.window = append(e.window, sample)
	e.sum += sample
}

// Average returns the mean of the buffered samples, or 0 while empty.
func (e *rollingEstimator[T]) Average() T {
	if len(e.window) == 0 {
		return 0
	}

	return e.sum / T(len(e.window))
}

func (e *rollingEstimator[T]) Len() int {
	return len(e.window)
}
