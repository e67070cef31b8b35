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

import "slices"

// frameHistory is one side's bounded buffer of recently displayed frames,
// newest at index 0. The oldest frame is evicted (and released) on
// overflow. Scrub and loop playback index into it independent of live
// decode.
type frameHistory struct {
	frames   []Frame
	capacity int
}

func newFrameHistory(capacity int) *frameHistory {
	return &frameHistory{
		frames:   make([]Frame, 0, capacity),
		capacity: capacity,
	}
}

// PushFront inserts f as the newest entry, evicting the oldest first when
// the history is at capacity.
func (h *frameHistory) PushFront(f Frame) {
	if len(h.frames) >= h.capacity {
		h.frames[len(h.frames)-1].Release()
		h.frames = h.frames[:len(h.frames)-1]
	}

	h.frames = slices.Insert(h.frames, 0, f)
}

// ReplaceFront swaps the newest entry for f, releasing the old one. The
// history must be non-empty.
func (h *frameHistory) ReplaceFront(f Frame) {
	h.frames[0].Release()
	h.frames[0] = f
}

// At returns the i-th entry, 0 being the newest.
func (h *frameHistory) At(i int) Frame {
	return h.frames[i]
}

// Back returns the oldest entry, or nil while empty.
func (h *frameHistory) Back() Frame {
	if len(h.frames) == 0 {
		return nil
	}

	return h.frames[len(h.frames)-1]
}

func (h *frameHistory) Len() int {
	return len(h.frames)
}

func (h *frameHistory) Full() bool {
	return len(h.frames) == h.capacity
}

// Clear releases every buffered frame.
func (h *frameHistory) Clear() {
	for _, f := range h.frames {
		f.Release()
	}

	h.frames = h.frames[:0]
}

// clampIndex bounds a scrub index to [0, maxIndex]. A negative maxIndex
// (empty history) yields -1 so callers can gate rendering on it.
func clampIndex(i, maxIndex int) int {
	return min(max(0, i), maxIndex)
}
