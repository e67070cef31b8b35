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

package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerResetTargetsNow(t *testing.T) {
	t.Parallel()

	timer := New()
	timer.Reset()

	// Immediately after a reset the target is at most a scheduling hiccup
	// away.
	assert.LessOrEqual(t, timer.UsUntilTarget(), int64(0))
	assert.Greater(t, timer.UsUntilTarget(), int64(-50_000))
}

func TestTimerShiftTarget(t *testing.T) {
	t.Parallel()

	timer := New()
	timer.Reset()
	timer.ShiftTarget(200_000)

	until := timer.UsUntilTarget()
	assert.Greater(t, until, int64(100_000))
	assert.LessOrEqual(t, until, int64(200_000))

	timer.ShiftTarget(-500_000)
	assert.Negative(t, timer.UsUntilTarget())
}

func TestTimerTargetPasses(t *testing.T) {
	t.Parallel()

	timer := New()
	timer.Reset()
	timer.ShiftTarget(10_000)

	time.Sleep(30 * time.Millisecond)

	assert.Negative(t, timer.UsUntilTarget())
}
