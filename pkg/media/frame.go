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

package media

import (
	"github.com/asticode/go-astiav"
)

// Frame wraps a decoded astiav frame. PTS and Duration are kept apart from
// the wrapped frame in AV_TIME_BASE ticks, already shifted so the input
// starts at zero; the engine rewrites Duration as its own estimate firms
// up.
type Frame struct {
	frame    *astiav.Frame
	pts      int64
	duration int64
}

func newFrame(f *astiav.Frame, pts, duration int64) *Frame {
	return &Frame{
		frame:    f,
		pts:      pts,
		duration: duration,
	}
}

func (f *Frame) PTS() int64 {
	return f.pts
}

func (f *Frame) Duration() int64 {
	return f.duration
}

func (f *Frame) SetDuration(d int64) {
	f.duration = d
}

// Release frees the wrapped ffmpeg frame. The Frame must not be used
// afterwards.
func (f *Frame) Release() {
	f.frame.Free()
	f.frame = nil
}

func (f *Frame) Width() int {
	return f.frame.Width()
}

func (f *Frame) Height() int {
	return f.frame.Height()
}

func (f *Frame) PixelFormat() astiav.PixelFormat {
	return f.frame.PixelFormat()
}

// Data exposes the wrapped frame's planes, e.g. for rendering.
func (f *Frame) Data() *astiav.FrameData {
	return f.frame.Data()
}

// Packet wraps one compressed packet read from a Demuxer. Whoever holds it
// last calls Release.
type Packet struct {
	pkt *astiav.Packet
}

func (p *Packet) StreamIndex() int {
	return p.pkt.StreamIndex()
}

func (p *Packet) Release() {
	p.pkt.Free()
	p.pkt = nil
}
