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

import "fmt"

// Side selects one of the two compared inputs. Per-side pipeline state is
// always duplicated, never shared between sides.
type Side int

const (
	Left Side = iota
	Right

	sideCount
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == Left {
		return Right
	}

	return Left
}

// sides enumerates both sides in a fixed order for range loops.
//
//nolint:gochecknoglobals // static
var sides = [sideCount]Side{Left, Right}

// LoopMode governs automatic scrub-index movement through the frame history
// once the history is full or the stream has ended.
type LoopMode int

const (
	LoopOff LoopMode = iota
	LoopForwardOnly
	LoopPingPong
)

func (m LoopMode) String() string {
	switch m {
	case LoopOff:
		return "off"
	case LoopForwardOnly:
		return "forward-only"
	case LoopPingPong:
		return "ping-pong"
	default:
		return fmt.Sprintf("loopMode(%d)", int(m))
	}
}

type badLoopModeError struct {
	name string
}

func (e *badLoopModeError) Error() string {
	return fmt.Sprintf("unknown loop mode %q", e.name)
}

type badSizeError struct {
	field string
	value int
}

func (e *badSizeError) Error() string {
	return fmt.Sprintf("config %s must be at least 1, got %d", e.field, e.value)
}

// ParseLoopMode parses the configuration spelling of a LoopMode.
func ParseLoopMode(name string) (LoopMode, error) {
	switch name {
	case "off", "":
		return LoopOff, nil
	case "forward-only":
		return LoopForwardOnly, nil
	case "ping-pong":
		return LoopPingPong, nil
	default:
		return LoopOff, &badLoopModeError{name}
	}
}

// Packet is an opaque compressed container unit. Ownership transfers to the
// consumer when it is popped from a queue; whoever holds it last calls
// Release.
type Packet interface {
	StreamIndex() int
	Release()
}

// Frame is a decoded, filtered, format-converted picture. PTS and Duration
// are in AV_TIME_BASE ticks (microseconds). The engine back-fills Duration
// once the following frame's PTS is known.
type Frame interface {
	PTS() int64
	Duration() int64
	SetDuration(int64)
	Release()
}

// Demuxer reads container packets for a single input. Implementations are
// only ever driven from one goroutine at a time; the engine's seek barrier
// guarantees Seek never races ReadPacket.
type Demuxer interface {
	// ReadPacket returns the next container packet, or io.EOF at
	// end-of-stream.
	ReadPacket() (Packet, error)

	// Seek positions the demuxer near position (seconds). backward requests
	// seeking to a keyframe at or before the target. It reports whether the
	// seek could be satisfied.
	Seek(position float64, backward bool) bool

	// Duration and StartTime are in AV_TIME_BASE ticks.
	Duration() int64
	StartTime() int64

	VideoStreamIndex() int
}

// VideoDecoder turns packets into decoded pictures.
type VideoDecoder interface {
	// Send feeds one compressed packet, or nil to begin a flush. It reports
	// false when the decoder is full and the packet must be re-sent after
	// draining Receive.
	Send(p Packet) (bool, error)

	// Receive returns the next decoded picture, or nil once the decoder has
	// no more pictures available right now.
	Receive() (Frame, error)

	// Flush discards all pictures cached inside the decoder.
	Flush()

	// IsAccelerated reports whether f still resides in accelerated (GPU)
	// memory and must be transferred before filtering.
	IsAccelerated(f Frame) bool

	// TransferToSystem moves f into system memory.
	TransferToSystem(f Frame) (Frame, error)
}

// VideoFilterer runs decoded pictures through a filter graph.
type VideoFilterer interface {
	// Send feeds a decoded picture, or nil to flush the graph so it emits
	// any delayed pictures.
	Send(f Frame) error

	// Receive returns the next filtered picture, or nil once drained.
	Receive() (Frame, error)

	// CloseSource signals end-of-stream on the graph's source.
	CloseSource() error

	// Reinit rebuilds the graph, discarding all internal state. Called
	// between seeks.
	Reinit() error
}

// FormatConverter scales and normalizes pixel format and color space.
type FormatConverter interface {
	Convert(f Frame) (Frame, error)
}

// InputState is one poll's snapshot of user intent, produced by
// Display.Input. Value fields (Play, SpeedFactor, SwapSides) reflect the
// current setting; the other fields are deltas consumed by the engine on
// this iteration only.
type InputState struct {
	Quit bool

	// Play is the current play/pause setting. TickPlayback is set on the
	// poll where playback was just resumed, so the engine can re-arm its
	// pacing baseline.
	Play         bool
	TickPlayback bool

	// SeekRelative is in seconds, or, when SeekFromStart is set, a fraction
	// of the shorter stream's duration measured from its start.
	SeekRelative  float64
	SeekFromStart bool

	// ShiftRightFrames shifts the right side by whole frames.
	ShiftRightFrames int

	// FrameNavigationDelta requests single-step navigation.
	FrameNavigationDelta int

	// ScrubOffsetDelta moves the scrub index within the frame history.
	ScrubOffsetDelta int

	// LoopMode requests a loop-mode change when non-nil.
	LoopMode *LoopMode

	SwapSides   bool
	SpeedFactor float64
}

// SeekRequest is the explicit seek intent derived from an input poll.
type SeekRequest struct {
	Relative         float64
	FromStart        bool
	ShiftRightFrames int
}

func (r SeekRequest) active() bool {
	return r.Relative != 0 || r.ShiftRightFrames != 0
}

// Display is the rendering/input layer. The engine is its only caller, and
// always from the comparison-loop goroutine.
type Display interface {
	// Input polls pending user events and returns the resulting intent.
	Input() InputState

	// Refresh presents one frame per side along with a "current/total"
	// scrub label and an optional user-visible message.
	Refresh(left, right Frame, label, message string)
}

// Timer is a monotonic pacing clock with a movable target instant.
type Timer interface {
	// Reset and Update both re-arm the target to the present; Reset is the
	// caller saying "start pacing from scratch", Update marks "an event
	// completed now".
	Reset()
	Update()

	// ShiftTarget moves the target by delta microseconds.
	ShiftTarget(deltaMicros int64)

	// Wait sleeps for the given number of microseconds.
	Wait(micros int64)

	// UsUntilTarget returns the microseconds remaining until the target;
	// negative once the target has passed.
	UsUntilTarget() int64
}
