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

// Package compare implements the dual-pipeline decode and synchronization
// engine. Two independently encoded video sources are demultiplexed and
// decoded on their own worker stages, joined by a central comparison loop
// that reconciles their timelines under a drift tolerance, buffers recent
// frames per side for scrubbing and looping, and coordinates cross-stage
// seeks.
package compare

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	lBackward  = "backward"
	lLoopMode  = "loopMode"
	lPosition  = "position"
	lSide      = "side"
	lStartTime = "startTime"
	lTimeShift = "rightTimeShift"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log zerolog.Logger

const (
	// parkInterval is how long a parked worker or a barrier poll sleeps
	// before re-evaluating quit/seek state.
	parkInterval = 10 * time.Millisecond

	// deltaWindow is the sample count of the rolling PTS-delta estimators.
	deltaWindow = 8

	// refreshThrottleUs limits out-of-sync refreshes to roughly 10 Hz.
	refreshThrottleUs = 100_000

	// fallbackShiftDeltaUs stands in for the right-side frame interval when
	// no delta estimate is available yet.
	fallbackShiftDeltaUs = 10_000
)
