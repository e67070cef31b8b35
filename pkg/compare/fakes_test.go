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
	"io"
	"sync"
)

// fakeFrame is an in-memory Frame carrying only timestamps.
type fakeFrame struct {
	pts      int64
	duration int64
	released int
}

func (f *fakeFrame) PTS() int64          { return f.pts }
func (f *fakeFrame) Duration() int64     { return f.duration }
func (f *fakeFrame) SetDuration(d int64) { f.duration = d }
func (f *fakeFrame) Release()            { f.released++ }

type fakePacket struct {
	pts int64
}

func (p *fakePacket) StreamIndex() int { return 0 }
func (p *fakePacket) Release()         {}

type seekCall struct {
	position float64
	backward bool
}

// fakeDemuxer emits one packet per frame interval over a fixed duration.
type fakeDemuxer struct {
	mu sync.Mutex

	interval  int64 // microseconds per frame
	duration  int64 // microseconds
	next      int64 // next frame index
	produced  int
	failAfter int // fail the Nth ReadPacket; <0 disables
	err       error

	seeks []seekCall
}

func newFakeDemuxer(interval, duration int64) *fakeDemuxer {
	return &fakeDemuxer{interval: interval, duration: duration, failAfter: -1}
}

func (d *fakeDemuxer) ReadPacket() (Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failAfter >= 0 && d.produced >= d.failAfter {
		return nil, d.err
	}

	pts := d.next * d.interval
	if pts >= d.duration {
		return nil, io.EOF
	}

	d.next++
	d.produced++

	return &fakePacket{pts: pts}, nil
}

func (d *fakeDemuxer) Seek(position float64, backward bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seeks = append(d.seeks, seekCall{position, backward})

	target := int64(position * 1e6)
	if target > d.duration && !backward {
		return false
	}

	d.next = max(0, min(target, d.duration-d.interval)/d.interval)

	return true
}

func (d *fakeDemuxer) seekCalls() []seekCall {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]seekCall, len(d.seeks))
	copy(out, d.seeks)

	return out
}

func (d *fakeDemuxer) Duration() int64       { return d.duration }
func (d *fakeDemuxer) StartTime() int64      { return 0 }
func (d *fakeDemuxer) VideoStreamIndex() int { return 0 }

// fakeDecoder yields exactly one picture per packet, timestamped from the
// packet.
type fakeDecoder struct {
	pending  []int64
	flushing bool
}

func (d *fakeDecoder) Send(p Packet) (bool, error) {
	if p == nil {
		if d.flushing {
			d.flushing = false

			return false, nil
		}

		d.flushing = true

		return true, nil
	}

	d.pending = append(d.pending, p.(*fakePacket).pts)

	return true, nil
}

func (d *fakeDecoder) Receive() (Frame, error) {
	if len(d.pending) == 0 {
		return nil, nil
	}

	pts := d.pending[0]
	d.pending = d.pending[1:]

	return &fakeFrame{pts: pts}, nil
}

func (d *fakeDecoder) Flush() {
	d.pending = nil
	d.flushing = false
}

func (d *fakeDecoder) IsAccelerated(Frame) bool { return false }

func (d *fakeDecoder) TransferToSystem(f Frame) (Frame, error) { return f, nil }

// fakeFilterer passes pictures through unchanged.
type fakeFilterer struct {
	queue []int64
}

func (f *fakeFilterer) Send(frame Frame) error {
	if frame != nil {
		f.queue = append(f.queue, frame.PTS())
	}

	return nil
}

func (f *fakeFilterer) Receive() (Frame, error) {
	if len(f.queue) == 0 {
		return nil, nil
	}

	pts := f.queue[0]
	f.queue = f.queue[1:]

	return &fakeFrame{pts: pts}, nil
}

func (f *fakeFilterer) CloseSource() error { return nil }

func (f *fakeFilterer) Reinit() error {
	f.queue = nil

	return nil
}

type fakeConverter struct{}

func (fakeConverter) Convert(f Frame) (Frame, error) {
	return &fakeFrame{pts: f.PTS(), duration: f.Duration()}, nil
}

func newFakePipeline(interval, duration int64) (Pipeline, *fakeDemuxer) {
	demuxer := newFakeDemuxer(interval, duration)

	return Pipeline{
		Demuxer:   demuxer,
		Decoder:   &fakeDecoder{},
		Filterer:  &fakeFilterer{},
		Converter: fakeConverter{},
	}, demuxer
}

type refreshRecord struct {
	leftPTS  int64
	rightPTS int64
	label    string
	message  string
}

// scriptedDisplay replays a fixed input script, then requests quit. All
// calls come from the comparison-loop goroutine, so no locking is needed.
type scriptedDisplay struct {
	script    []InputState
	nextInput int

	refreshes []refreshRecord
}

func (d *scriptedDisplay) Input() InputState {
	if d.nextInput < len(d.script) {
		in := d.script[d.nextInput]
		d.nextInput++

		return in
	}

	return InputState{Quit: true}
}

func (d *scriptedDisplay) Refresh(left, right Frame, label, message string) {
	d.refreshes = append(d.refreshes, refreshRecord{
		leftPTS:  left.PTS(),
		rightPTS: right.PTS(),
		label:    label,
		message:  message,
	})
}

// stubTimer never gates: the target is always "now", so tests exercise the
// synchronization logic at full speed instead of real-time pacing.
type stubTimer struct{}

func (stubTimer) Reset()               {}
func (stubTimer) Update()              {}
func (stubTimer) ShiftTarget(int64)    {}
func (stubTimer) Wait(int64)           {}
func (stubTimer) UsUntilTarget() int64 { return 0 }

// elapsedTimer reports a target long past. As the refresh timer it defeats
// the out-of-sync throttle, so every iteration with buffered frames
// renders and a test can watch the catch-up progression step by step.
type elapsedTimer struct{ stubTimer }

func (elapsedTimer) UsUntilTarget() int64 { return -2 * refreshThrottleUs }

func playScript(n int) []InputState {
	script := make([]InputState, n)
	for i := range script {
		script[i] = InputState{Play: true}
	}

	return script
}
