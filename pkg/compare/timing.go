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

import "math"

const (
	// avTimeToSec converts AV_TIME_BASE ticks (microseconds) to seconds.
	avTimeToSec = 1e-6

	// millisecToAvTime converts milliseconds to AV_TIME_BASE ticks.
	millisecToAvTime = 1000

	// syncEpsilonSec pads the tolerance so near-equal timestamps don't
	// oscillate between "behind" and "in sync".
	syncEpsilonSec = 1e-5

	// minToleranceSec floors the tolerance for very low relative frame-rate
	// differences.
	minToleranceSec = 1.0 / 480.0
)

// isBehind reports whether pts1 trails pts2 by more than the tolerance
// derived from deltaPTS. The test is asymmetric: isBehind(a,b,d) and
// isBehind(b,a,d) are never simultaneously true.
func isBehind(pts1, pts2, deltaPTS int64) bool {
	t1 := float64(pts1) * avTimeToSec
	t2 := float64(pts2) * avTimeToSec
	deltaSec := float64(deltaPTS)*avTimeToSec - syncEpsilonSec

	tolerance := math.Max(deltaSec, minToleranceSec)

	return t1-t2 < -tolerance
}

// computeMinDelta derives the working drift tolerance from the two sides'
// current frame intervals.
func computeMinDelta(deltaLeftPTS, deltaRightPTS int64) int64 {
	return min(deltaLeftPTS, deltaRightPTS) * 8 / 10
}

// isInSync reports whether neither side is behind the other under the
// working tolerance.
func isInSync(leftPTS, rightPTS, deltaLeftPTS, deltaRightPTS int64) bool {
	minDelta := computeMinDelta(deltaLeftPTS, deltaRightPTS)

	return !isBehind(leftPTS, rightPTS, minDelta) && !isBehind(rightPTS, leftPTS, minDelta)
}

// computeFrameDelay picks the pacing delay for a newly fetched pair.
func computeFrameDelay(leftPTS, rightPTS int64) int64 {
	return max(leftPTS, rightPTS)
}
