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

import "sync/atomic"

// stageKind identifies which worker stage of a side's pipeline has quiesced
// for an in-flight seek.
type stageKind int

const (
	stageDemultiplexer stageKind = iota
	stageDecoder

	stageKindCount
)

// readyToSeek is the seek rendezvous barrier. The comparison loop resets it
// when a seek is requested, worker stages set their flag once they have
// fully quiesced, and the loop proceeds only when every flag on every side
// is set. A decoder must set its flag only strictly after flushing the
// external decoder for the current epoch.
type readyToSeek struct {
	flags [stageKindCount][sideCount]atomic.Bool
}

func (r *readyToSeek) reset() {
	for k := range r.flags {
		for s := range r.flags[k] {
			r.flags[k][s].Store(false)
		}
	}
}

func (r *readyToSeek) set(k stageKind, side Side) {
	r.flags[k][side].Store(true)
}

func (r *readyToSeek) get(k stageKind, side Side) bool {
	return r.flags[k][side].Load()
}

// allReady reports whether every stage on every side has quiesced.
func (r *readyToSeek) allReady() bool {
	for k := range r.flags {
		for s := range r.flags[k] {
			if !r.flags[k][s].Load() {
				return false
			}
		}
	}

	return true
}
