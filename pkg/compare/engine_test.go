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
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	interval25fps = int64(40_000)
	interval24fps = int64(41_666)
	interval20fps = int64(50_000)
	tenSeconds    = int64(10_000_000)
	twentySeconds = int64(20_000_000)
)

func newTestEngine(t *testing.T, config Config, left, right Pipeline,
	display Display,
) *Engine {
	t.Helper()

	logger := zerolog.Nop()

	e, err := New(&config, Options{
		Left:         left,
		Right:        right,
		Display:      display,
		Timer:        stubTimer{},
		RefreshTimer: stubTimer{},
	}, &logger)
	require.NoError(t, err)

	return e
}

func TestEngineRejectsBadLoopMode(t *testing.T) {
	t.Parallel()

	config := ConfigDefault()
	config.AutoLoopMode = "sideways"

	logger := zerolog.Nop()

	_, err := New(&config, Options{}, &logger)
	require.Error(t, err)

	var bad *badLoopModeError

	assert.ErrorAs(t, err, &bad)
}

func TestEngineRejectsZeroSizes(t *testing.T) {
	t.Parallel()

	logger := zerolog.Nop()

	config := ConfigDefault()
	config.FrameBufferSize = 0

	_, err := New(&config, Options{}, &logger)
	require.Error(t, err)

	var bad *badSizeError

	assert.ErrorAs(t, err, &bad)

	config = ConfigDefault()
	config.QueueSize = 0

	_, err = New(&config, Options{}, &logger)
	require.Error(t, err)
	assert.ErrorAs(t, err, &bad)
}

func TestEnginePlaybackStaysInSync(t *testing.T) {
	t.Parallel()

	left, _ := newFakePipeline(interval25fps, tenSeconds)
	right, _ := newFakePipeline(interval24fps, tenSeconds)
	display := &scriptedDisplay{script: playScript(40)}

	e := newTestEngine(t, ConfigDefault(), left, right, display)
	require.NoError(t, e.Run())

	require.NotEmpty(t, display.refreshes)

	// Every refresh of mismatched frame rates happens within the drift
	// tolerance: under one frame interval of the slower side.
	for _, r := range display.refreshes {
		diff := r.leftPTS - r.rightPTS
		if diff < 0 {
			diff = -diff
		}

		assert.Less(t, diff, interval24fps,
			"refresh out of tolerance: left=%d right=%d", r.leftPTS, r.rightPTS)
	}

	last := display.refreshes[len(display.refreshes)-1]
	assert.Greater(t, last.leftPTS, int64(0), "playback never advanced")
}

func TestEngineInSyncLabelBracketed(t *testing.T) {
	t.Parallel()

	left, _ := newFakePipeline(interval25fps, tenSeconds)
	right, _ := newFakePipeline(interval25fps, tenSeconds)
	display := &scriptedDisplay{script: playScript(10)}

	e := newTestEngine(t, ConfigDefault(), left, right, display)
	require.NoError(t, e.Run())

	require.NotEmpty(t, display.refreshes)

	first := display.refreshes[0]
	assert.True(t, strings.HasPrefix(first.label, "["), "label %q", first.label)
	assert.True(t, strings.HasSuffix(first.label, "]"), "label %q", first.label)
	assert.Contains(t, first.label, "/")
}

func TestEngineSeekRepositionsBothSides(t *testing.T) {
	t.Parallel()

	left, leftDemuxer := newFakePipeline(interval25fps, tenSeconds)
	right, rightDemuxer := newFakePipeline(interval25fps, tenSeconds)

	script := playScript(5)
	script = append(script, InputState{SeekRelative: 2.0})
	script = append(script, playScript(10)...)
	display := &scriptedDisplay{script: script}

	e := newTestEngine(t, ConfigDefault(), left, right, display)
	require.NoError(t, e.Run())

	leftSeeks := leftDemuxer.seekCalls()
	rightSeeks := rightDemuxer.seekCalls()
	require.Len(t, leftSeeks, 1)
	require.Len(t, rightSeeks, 1)

	// Both sides aim 2 s past the pre-seek left position (a few frames in).
	assert.InDelta(t, 2.1, leftSeeks[0].position, 0.3)
	assert.InDelta(t, 2.1, rightSeeks[0].position, 0.3)
	assert.False(t, leftSeeks[0].backward)

	last := display.refreshes[len(display.refreshes)-1]
	assert.Greater(t, last.leftPTS, int64(1_900_000), "playback did not resume past the seek target")
}

func TestEngineSeekFromStartResyncsShiftedRates(t *testing.T) {
	t.Parallel()

	// 24 fps against 25 fps with a -500 ms right shift, seeking to the
	// 10-second mark of two 20-second streams.
	left, leftDemuxer := newFakePipeline(interval24fps, twentySeconds)
	right, rightDemuxer := newFakePipeline(interval25fps, twentySeconds)

	config := ConfigDefault()
	config.TimeShiftMs = -500

	script := playScript(15)
	script = append(script, InputState{Play: true, SeekRelative: 0.5, SeekFromStart: true})
	script = append(script, playScript(20)...)
	display := &scriptedDisplay{script: script}

	e := newTestEngine(t, config, left, right, display)
	require.NoError(t, e.Run())

	leftSeeks := leftDemuxer.seekCalls()
	rightSeeks := rightDemuxer.seekCalls()
	require.Len(t, leftSeeks, 1)
	require.Len(t, rightSeeks, 1)

	// Half of the shorter duration lands on the 10-second mark.
	assert.InDelta(t, 10.0, leftSeeks[0].position, 0.01)
	assert.InDelta(t, 10.0, rightSeeks[0].position, 0.01)
	assert.False(t, leftSeeks[0].backward)

	// Refreshes only fire in sync here, so any refresh past the target
	// proves the sides resynced within the 20 scripted iterations.
	var postSeek []refreshRecord

	for _, r := range display.refreshes {
		if r.leftPTS > 9_000_000 {
			postSeek = append(postSeek, r)
		}
	}

	require.NotEmpty(t, postSeek, "sides never resynced after the seek")

	// Cleared histories restart the scrub label at a single buffered pair,
	// and the reset baselines sit just past the target with the shift
	// applied.
	first := postSeek[0]
	assert.Equal(t, "[01/01]", first.label)
	assert.Equal(t, tenSeconds, first.rightPTS)
	assert.Greater(t, first.leftPTS, int64(10_400_000))
	assert.Less(t, first.leftPTS, int64(10_600_000))
}

func TestEngineCatchUpPopsOneFramePerIteration(t *testing.T) {
	t.Parallel()

	// A -200 ms right shift over 50 ms frame intervals leaves the left
	// side exactly four frames behind at the start.
	left, _ := newFakePipeline(interval20fps, tenSeconds)
	right, _ := newFakePipeline(interval20fps, tenSeconds)

	config := ConfigDefault()
	config.TimeShiftMs = -200

	display := &scriptedDisplay{script: playScript(8)}
	logger := zerolog.Nop()

	e, err := New(&config, Options{
		Left:    left,
		Right:   right,
		Display: display,
		Timer:   stubTimer{},
		// An expired refresh timer renders every iteration, in sync or
		// not, exposing each catch-up step.
		RefreshTimer: elapsedTimer{},
	}, &logger)
	require.NoError(t, err)
	require.NoError(t, e.Run())

	require.Len(t, display.refreshes, 8)

	// The first pair establishes the baselines.
	assert.Equal(t, int64(0), display.refreshes[0].leftPTS)
	assert.Equal(t, int64(0), display.refreshes[0].rightPTS)

	// While behind, the left side pops exactly one extra frame per
	// iteration and the right side holds its frame.
	for i := 1; i <= 4; i++ {
		r := display.refreshes[i]
		assert.Equal(t, int64(i)*interval20fps, r.leftPTS, "iteration %d", i)
		assert.Equal(t, int64(0), r.rightPTS, "iteration %d", i)
	}

	// Caught up after four pops, paired playback resumes on both sides.
	assert.Equal(t, 5*interval20fps, display.refreshes[5].leftPTS)
	assert.Equal(t, interval20fps, display.refreshes[5].rightPTS)
	assert.Equal(t, 6*interval20fps, display.refreshes[6].leftPTS)
	assert.Equal(t, 2*interval20fps, display.refreshes[6].rightPTS)
}

func TestEngineShiftRightFramesRealignsFrames(t *testing.T) {
	t.Parallel()

	left, leftDemuxer := newFakePipeline(interval25fps, tenSeconds)
	right, rightDemuxer := newFakePipeline(interval25fps, tenSeconds)

	script := playScript(5)
	script = append(script, InputState{Play: true, ShiftRightFrames: 1})
	script = append(script, playScript(6)...)
	display := &scriptedDisplay{script: script}

	e := newTestEngine(t, ConfigDefault(), left, right, display)
	require.NoError(t, e.Run())

	// A frame shift repositions both demuxers at the current position,
	// backward so decoding restarts on a keyframe at or before it.
	leftSeeks := leftDemuxer.seekCalls()
	rightSeeks := rightDemuxer.seekCalls()
	require.Len(t, leftSeeks, 1)
	require.Len(t, rightSeeks, 1)
	assert.True(t, leftSeeks[0].backward)
	assert.True(t, rightSeeks[0].backward)
	assert.InDelta(t, 0.16, leftSeeks[0].position, 0.01)
	assert.InDelta(t, 0.16, rightSeeks[0].position, 0.01)

	require.Len(t, display.refreshes, 11)

	// Identical streams play frame for frame before the shift, and one
	// right frame ahead after it.
	for _, r := range display.refreshes[:5] {
		assert.Equal(t, r.leftPTS, r.rightPTS)
	}

	for _, r := range display.refreshes[5:] {
		assert.Equal(t, interval25fps, r.rightPTS-r.leftPTS)
		assert.Empty(t, r.message)
	}
}

func TestRoundShiftAwayFromZero(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(0), roundShiftAwayFromZero(0))
	assert.Equal(t, int64(42_000), roundShiftAwayFromZero(40_000))
	assert.Equal(t, int64(-42_000), roundShiftAwayFromZero(-40_000))

	// Sub-millisecond shifts still round outward to a full 2 ms.
	assert.Equal(t, int64(2_000), roundShiftAwayFromZero(500))
	assert.Equal(t, int64(-2_000), roundShiftAwayFromZero(-500))
}

func TestEngineForwardSeekPastEndRollsBack(t *testing.T) {
	t.Parallel()

	left, leftDemuxer := newFakePipeline(interval25fps, tenSeconds)
	right, _ := newFakePipeline(interval25fps, tenSeconds)

	script := playScript(3)
	script = append(script, InputState{SeekRelative: 100.0})
	script = append(script, playScript(5)...)
	display := &scriptedDisplay{script: script}

	e := newTestEngine(t, ConfigDefault(), left, right, display)
	require.NoError(t, e.Run())

	seeks := leftDemuxer.seekCalls()
	require.Len(t, seeks, 2, "a failed forward seek must be rolled back")
	assert.False(t, seeks[0].backward)
	assert.True(t, seeks[1].backward)
	assert.Less(t, seeks[1].position, 1.0, "rollback must restore the pre-seek position")

	var sawMessage bool

	for _, r := range display.refreshes {
		if r.message == "unable to seek past end of file" {
			sawMessage = true
		}
	}

	assert.True(t, sawMessage, "the failed seek must surface a message")
}

func TestEngineWorkerFaultSurfaces(t *testing.T) {
	t.Parallel()

	wire := errors.New("wire fell out")

	left, leftDemuxer := newFakePipeline(interval25fps, tenSeconds)
	leftDemuxer.failAfter = 3
	leftDemuxer.err = wire

	right, _ := newFakePipeline(interval25fps, tenSeconds)
	display := &scriptedDisplay{script: playScript(200)}

	e := newTestEngine(t, ConfigDefault(), left, right, display)

	err := e.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, wire)
}

func TestEngineAutoLoopAfterEndOfFile(t *testing.T) {
	t.Parallel()

	// Half a second of video ends well before the script runs out, which
	// arms forward-only looping through the buffered frames.
	left, _ := newFakePipeline(interval25fps, 500_000)
	right, _ := newFakePipeline(interval25fps, 500_000)

	config := ConfigDefault()
	config.AutoLoopMode = LoopForwardOnly.String()

	display := &scriptedDisplay{script: playScript(60)}

	e := newTestEngine(t, config, left, right, display)
	require.NoError(t, e.Run())

	labels := map[string]bool{}
	for _, r := range display.refreshes {
		labels[r.label] = true
	}

	assert.Greater(t, len(labels), 1, "looping must move the scrub position")
}

func TestEngineScrubHoldsHistoryFrame(t *testing.T) {
	t.Parallel()

	left, _ := newFakePipeline(interval25fps, tenSeconds)
	right, _ := newFakePipeline(interval25fps, tenSeconds)

	script := playScript(6)
	script = append(script, InputState{ScrubOffsetDelta: 3})
	display := &scriptedDisplay{script: script}

	e := newTestEngine(t, ConfigDefault(), left, right, display)
	require.NoError(t, e.Run())

	require.NotEmpty(t, display.refreshes)

	last := display.refreshes[len(display.refreshes)-1]
	prior := display.refreshes[len(display.refreshes)-2]
	assert.Less(t, last.leftPTS, prior.leftPTS, "scrubbing back must show an older frame")
}

func TestAdvanceLoopForwardOnlyWraps(t *testing.T) {
	t.Parallel()

	e := &Engine{loopMode: LoopForwardOnly}

	// Forward playback moves toward index 0 (newest) and wraps to the
	// oldest.
	assert.Equal(t, 4, e.advanceLoop(5, 9))
	assert.Equal(t, 9, e.advanceLoop(0, 9))
}

func TestAdvanceLoopPingPongReverses(t *testing.T) {
	t.Parallel()

	e := &Engine{loopMode: LoopPingPong, loopForward: true}

	assert.Equal(t, 4, e.advanceLoop(5, 9))

	// At the newest boundary it turns around.
	assert.Equal(t, 1, e.advanceLoop(0, 9))
	assert.False(t, e.loopForward)

	// At the oldest boundary it turns around again.
	assert.Equal(t, 8, e.advanceLoop(9, 9))
	assert.True(t, e.loopForward)
}

func TestBrowsableLabelPadding(t *testing.T) {
	t.Parallel()

	e := &Engine{config: &Config{FrameBufferSize: 50}}

	assert.Equal(t, "01/10", e.browsableLabel(0, 9, false))
	assert.Equal(t, "[05/50]", e.browsableLabel(4, 49, true))

	e.config.FrameBufferSize = 100
	assert.Equal(t, "007/100", e.browsableLabel(6, 99, false))
}
