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

// Package timing provides the monotonic pacing clock for frame playback.
package timing

import "time"

// Timer tracks a movable target instant. Playback shifts the target by one
// frame interval per displayed pair and sleeps out whatever remains.
type Timer struct {
	target time.Time
}

// New returns a Timer whose target is the present.
func New() *Timer {
	return &Timer{target: time.Now()}
}

// Reset re-arms the target to the present, abandoning any accumulated
// schedule.
func (t *Timer) Reset() {
	t.target = time.Now()
}

// Update marks an event as completed now.
func (t *Timer) Update() {
	t.target = time.Now()
}

// ShiftTarget moves the target by delta microseconds.
func (t *Timer) ShiftTarget(deltaMicros int64) {
	t.target = t.target.Add(time.Duration(deltaMicros) * time.Microsecond)
}

// Wait sleeps for the given number of microseconds.
func (t *Timer) Wait(micros int64) {
	time.Sleep(time.Duration(micros) * time.Microsecond)
}

// UsUntilTarget returns the microseconds remaining until the target,
// negative once the target has passed.
func (t *Timer) UsUntilTarget() int64 {
	return time.Until(t.target).Microseconds()
}
