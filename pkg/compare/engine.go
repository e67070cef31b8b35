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
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config configures the comparison engine.
type Config struct { //nolint:govet // Don't care about alignment.
	FrameBufferSize int    `yaml:"frameBufferSize" env:"FRAME_BUFFER_SIZE" doc:"Recent frames buffered per side for scrubbing and looping"`
	QueueSize       int    `yaml:"queueSize" env:"QUEUE_SIZE" doc:"Capacity of each packet and frame queue"`
	TimeShiftMs     int64  `yaml:"timeShiftMs" env:"TIME_SHIFT_MS" doc:"Base right-side time shift in milliseconds"`
	AutoLoopMode    string `yaml:"autoLoopMode" env:"AUTO_LOOP_MODE" doc:"Loop mode armed once the buffer fills or a stream ends. One of: off, forward-only, ping-pong"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		FrameBufferSize: 50,
		QueueSize:       5,
		TimeShiftMs:     0,
		AutoLoopMode:    LoopOff.String(),
	}
}

// Pipeline groups one side's external collaborators in dependency order.
// The engine holds top-level ownership; each stage only ever references its
// immediate neighbor through these interfaces.
type Pipeline struct {
	Demuxer   Demuxer
	Decoder   VideoDecoder
	Filterer  VideoFilterer
	Converter FormatConverter
}

// Options carries everything an Engine needs besides its Config.
type Options struct {
	Left  Pipeline
	Right Pipeline

	Display Display

	// Timer paces playback; RefreshTimer measures render latency.
	Timer        Timer
	RefreshTimer Timer
}

// Engine owns both decode pipelines, the four bounded queues, and the
// comparison loop that drives them.
type Engine struct {
	config *Config

	demuxers   [sideCount]Demuxer
	decoders   [sideCount]VideoDecoder
	filterers  [sideCount]VideoFilterer
	converters [sideCount]FormatConverter

	display      Display
	timer        Timer
	refreshTimer Timer

	packetQueues [sideCount]*Queue[Packet]
	frameQueues  [sideCount]*Queue[Frame]

	autoLoopMode LoopMode
	loopMode     LoopMode
	loopForward  bool

	// timeShift is the configured base right-side shift in AV_TIME_BASE
	// ticks; shortestDuration is the shorter input's duration in seconds.
	timeShift        int64
	shortestDuration float64

	seeking     atomic.Bool
	quit        atomic.Bool
	readyToSeek readyToSeek
	faults      errorHolder
}

// New returns a new Engine instance wired to the given collaborators.
func New(config *Config, options Options, logger *zerolog.Logger) (*Engine, error) {
	log = logger.With().Str("pkg", "compare").Logger()

	autoLoopMode, err := ParseLoopMode(config.AutoLoopMode)
	if err != nil {
		return nil, err
	}

	// A zero-capacity history or queue cannot hold a single frame.
	if config.FrameBufferSize < 1 {
		return nil, &badSizeError{field: "frameBufferSize", value: config.FrameBufferSize}
	}

	if config.QueueSize < 1 {
		return nil, &badSizeError{field: "queueSize", value: config.QueueSize}
	}

	e := &Engine{
		config: config,

		demuxers:   [sideCount]Demuxer{options.Left.Demuxer, options.Right.Demuxer},
		decoders:   [sideCount]VideoDecoder{options.Left.Decoder, options.Right.Decoder},
		filterers:  [sideCount]VideoFilterer{options.Left.Filterer, options.Right.Filterer},
		converters: [sideCount]FormatConverter{options.Left.Converter, options.Right.Converter},

		display:      options.Display,
		timer:        options.Timer,
		refreshTimer: options.RefreshTimer,

		autoLoopMode: autoLoopMode,
		loopForward:  true,

		timeShift: config.TimeShiftMs * millisecToAvTime,
		shortestDuration: float64(min(options.Left.Demuxer.Duration(),
			options.Right.Demuxer.Duration())) * avTimeToSec,
	}

	for _, side := range sides {
		e.packetQueues[side] = NewQueue(config.QueueSize, func(p Packet) { p.Release() })
		e.frameQueues[side] = NewQueue(config.QueueSize, func(f Frame) { f.Release() })
	}

	return e, nil
}

// Run starts both sides' worker stages, drives the comparison loop until
// the display requests quit or a stage fails, joins all workers, and
// returns the first stored failure, if any.
func (e *Engine) Run() error {
	var workers sync.WaitGroup

	for _, side := range sides {
		workers.Add(2)

		go func(side Side) {
			defer workers.Done()
			e.demultiplex(side)
		}(side)

		go func(side Side) {
			defer workers.Done()
			e.decodeVideo(side)
		}(side)
	}

	e.faults.store(e.compare())

	// Force-quit every queue so parked workers observe termination, then
	// join before surfacing the single stored failure.
	for _, side := range sides {
		e.quitQueues(side)
	}

	workers.Wait()

	return e.faults.stored()
}

func (e *Engine) keepRunning() bool {
	return !e.quit.Load() && !e.faults.hasError()
}

func (e *Engine) quitQueues(side Side) {
	e.frameQueues[side].Quit()
	e.packetQueues[side].Quit()
}

// sideState is the comparison loop's per-side timeline bookkeeping.
type sideState struct {
	pts int64

	// decodedPictures vs. previousDecodedPictures distinguishes a freshly
	// decoded picture from a repeat when back-patching durations.
	decodedPictures         int64
	previousDecodedPictures int64

	delta    int64
	firstPTS int64

	startTime float64 // seconds

	deltas  *rollingEstimator[int64]
	history *frameHistory

	// fetched is the frame popped this iteration, not yet stored.
	fetched Frame
}

// setFetched replaces any frame already fetched this iteration.
func (st *sideState) setFetched(f Frame) {
	if st.fetched != nil {
		st.fetched.Release()
	}

	st.fetched = f
}

// takeFetched hands ownership of the fetched frame to the caller.
func (st *sideState) takeFetched() Frame {
	f := st.fetched
	st.fetched = nil

	return f
}

// compare is the comparison loop. It runs on the caller's goroutine until
// quit or failure; returning an error is equivalent to a worker-stage
// fault.
//
//nolint:funlen,gocognit,gocyclo,cyclop,maintidx // Long but linear, like the pipeline it drives.
func (e *Engine) compare() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("comparison loop panicked: %v", r)
		}
	}()

	states := [sideCount]*sideState{}

	for _, side := range sides {
		st := &sideState{
			previousDecodedPictures: -1,
			deltas:                  newRollingEstimator[int64](deltaWindow),
			history:                 newFrameHistory(e.config.FrameBufferSize),
			startTime:               float64(e.demuxers[side].StartTime()) * avTimeToSec,
		}

		if st.startTime > 0 {
			log.Info().Stringer(lSide, side).Float64(lStartTime, st.startTime).
				Msg("video has a start time; timestamps will be shifted to start at zero")
		}

		states[side] = st
	}

	defer func() {
		for _, st := range states {
			st.setFetched(nil)
			st.history.Clear()
		}
	}()

	refreshLatency := newRollingEstimator[int64](deltaWindow)

	rightTimeShift := e.timeShift
	totalRightShifted := 0
	forwardNavigate := 0
	scrubIndex := 0
	autoLoopTriggered := false
	speed := 1.0
	swapped := false
	storedPairs := 0

	for {
		var message string

		in := e.display.Input()

		if in.Quit {
			e.quit.Store(true)
		}

		if !e.keepRunning() {
			return nil
		}

		if in.TickPlayback {
			e.timer.Reset()
		}

		if in.SpeedFactor > 0 {
			speed = in.SpeedFactor
		}

		swapped = in.SwapSides

		if in.LoopMode != nil {
			e.loopMode = *in.LoopMode
		}

		forwardNavigate += in.FrameNavigationDelta

		skipUpdate := false

		seek := SeekRequest{
			Relative:         in.SeekRelative,
			FromStart:        in.SeekFromStart,
			ShiftRightFrames: in.ShiftRightFrames,
		}

		if seek.active() {
			rightTimeShift, message, err = e.performSeek(seek, states, &totalRightShifted)
			if err != nil {
				return err
			}

			// A post-seek position jump must never be treated as ordinary
			// playback progress for the sync math.
			skipUpdate = true
		}

		storeFrames := false
		adjusting := false

		// Keep showing the current frame for another iteration while the
		// pacing target is further out than the average render latency.
		skipUpdate = skipUpdate || (e.timer.UsUntilTarget()-refreshLatency.Average()) > 0
		fetchNext := in.Play || forwardNavigate > 0

		minDelta := computeMinDelta(states[Left].delta, states[Right].delta)

		// Catch-up: each side is evaluated independently and pops at most
		// one extra frame per iteration.
		for _, side := range sides {
			st := states[side]
			other := states[side.Other()]

			if isBehind(st.pts, other.pts, minDelta) {
				adjusting = true

				if f, ok := e.frameQueues[side].Pop(); ok {
					st.setFetched(f)
					st.decodedPictures++
				}
			}
		}

		// Regular playback: fetch one frame per side and pace the display.
		if !skipUpdate && e.loopMode == LoopOff {
			if !adjusting && fetchNext {
				frameLeft, okLeft := e.frameQueues[Left].Pop()
				frameRight, okRight := e.frameQueues[Right].Pop()

				if !okLeft || !okRight {
					// Transient stall; drop whichever side arrived.
					if okLeft {
						frameLeft.Release()
					}

					if okRight {
						frameRight.Release()
					}

					states[Left].setFetched(nil)
					states[Right].setFetched(nil)

					e.timer.Update()
				} else {
					states[Left].setFetched(frameLeft)
					states[Right].setFetched(frameRight)
					states[Left].decodedPictures++
					states[Right].decodedPictures++

					storeFrames = true
					storedPairs++

					if storedPairs > 1 {
						delay := computeFrameDelay(frameLeft.PTS()-states[Left].pts,
							frameRight.PTS()-states[Right].pts-rightTimeShift)

						e.timer.ShiftTarget(int64(float64(delay) / speed))
					} else {
						// The very first pair only records baselines.
						states[Left].firstPTS = frameLeft.PTS()
						states[Right].firstPTS = frameRight.PTS()

						e.timer.Update()
					}
				}
			} else {
				e.timer.Reset()
			}
		}

		// Frame-accurate forward navigation: only a stored pair counts.
		if storeFrames && forwardNavigate > 0 {
			forwardNavigate--
		}

		for _, side := range sides {
			e.backPatchDuration(side, states[side], rightTimeShift)
		}

		e.updateHistories(states, storeFrames)

		noActivity := !skipUpdate && !adjusting && !storeFrames
		endOfFile := noActivity &&
			(e.frameQueues[Left].IsStopped() || e.frameQueues[Right].IsStopped())
		bufferFull := states[Left].history.Full() && states[Right].history.Full()

		maxIndex := states[Left].history.Len() - 1
		scrubIndex = clampIndex(scrubIndex+in.ScrubOffsetDelta, maxIndex)

		if scrubIndex < 0 || states[Left].history.Len() == 0 || states[Right].history.Len() == 0 {
			continue
		}

		playbackInSync := isInSync(states[Left].pts, states[Right].pts,
			states[Left].delta, states[Right].delta)

		// Out-of-sync refreshes are throttled to ~10 Hz so resyncing stays
		// cheap.
		if !playbackInSync && e.refreshTimer.UsUntilTarget() > -refreshThrottleUs {
			continue
		}

		label := e.browsableLabel(scrubIndex, maxIndex, fetchNext && playbackInSync)

		e.refreshTimer.Update()

		leftHistory, rightHistory := states[Left].history, states[Right].history
		if swapped {
			leftHistory, rightHistory = rightHistory, leftHistory
		}

		e.display.Refresh(
			leftHistory.At(min(scrubIndex, leftHistory.Len()-1)),
			rightHistory.At(min(scrubIndex, rightHistory.Len()-1)),
			label, message)

		refreshLatency.Push(-e.refreshTimer.UsUntilTarget())

		// Either sleep out the remaining pacing budget, or, past the
		// deadline with a loop mode active, auto-advance the scrub index.
		untilTarget := e.timer.UsUntilTarget()

		switch {
		case untilTarget > 0 && untilTarget < refreshLatency.Average():
			e.timer.Wait(untilTarget)

		case untilTarget <= 0 && e.loopMode != LoopOff:
			scrubIndex = e.advanceLoop(scrubIndex, maxIndex)

			delay := computeFrameDelay(
				states[Left].history.At(min(scrubIndex, states[Left].history.Len()-1)).Duration(),
				states[Right].history.At(min(scrubIndex, states[Right].history.Len()-1)).Duration())

			e.timer.ShiftTarget(int64(float64(delay) / speed))
		}

		// Arm the configured loop mode exactly once.
		if e.autoLoopMode != LoopOff && !autoLoopTriggered && (bufferFull || endOfFile) {
			e.loopMode = e.autoLoopMode
			autoLoopTriggered = true

			log.Debug().Stringer(lLoopMode, e.loopMode).Msg("auto loop armed")
		}
	}
}

// backPatchDuration implements the duration estimation for one side:
//  1. Update the previous frame's duration to its exact value once the next
//     frame has been decoded.
//  2. Feed the rolling PTS-delta estimator, but only between strictly
//     sequential decoded pictures.
//  3. Assume the current frame's duration approximates the average.
func (e *Engine) backPatchDuration(side Side, st *sideState, rightTimeShift int64) {
	if st.fetched == nil {
		return
	}

	newPTS := st.fetched.PTS()
	if side == Right {
		newPTS -= rightTimeShift
	}

	if st.decodedPictures-st.previousDecodedPictures == 1 {
		st.deltas.Push(newPTS - st.pts)
		st.delta = st.deltas.Average()
	}

	if st.delta > 0 {
		st.fetched.SetDuration(st.delta)

		if oldest := st.history.Back(); oldest != nil && oldest.PTS() == st.firstPTS {
			oldest.SetDuration(st.delta)
		}
	} else {
		st.delta = st.fetched.Duration()
	}

	st.pts = newPTS
	st.previousDecodedPictures = st.decodedPictures
}

// updateHistories applies the push-new / seed / overwrite policy: a stored
// pair is pushed to the front of both rings; a lone frame seeds an empty
// ring or overwrites the most-recent entry so the history reflects the
// currently relevant window, not every transient fetch.
func (e *Engine) updateHistories(states [sideCount]*sideState, storeFrames bool) {
	if storeFrames {
		for _, st := range states {
			st.history.PushFront(st.takeFetched())
		}

		return
	}

	for _, st := range states {
		f := st.takeFetched()
		if f == nil {
			continue
		}

		if st.history.Len() > 0 {
			st.history.ReplaceFront(f)
		} else {
			st.history.PushFront(f)
		}
	}
}

// advanceLoop moves the scrub index one step for the active loop mode.
// ForwardOnly wraps at the newest end back to the oldest; PingPong reverses
// direction at either boundary.
func (e *Engine) advanceLoop(scrubIndex, maxIndex int) int {
	switch e.loopMode {
	case LoopForwardOnly:
		if scrubIndex == 0 {
			return maxIndex
		}

		return clampIndex(scrubIndex-1, maxIndex)

	case LoopPingPong:
		if maxIndex >= 1 && (scrubIndex == 0 || scrubIndex == maxIndex) {
			e.loopForward = !e.loopForward
		}

		step := 1
		if e.loopForward {
			step = -1
		}

		return clampIndex(scrubIndex+step, maxIndex)

	default:
		return scrubIndex
	}
}

// browsableLabel renders the zero-padded "current/total" scrub label,
// bracketed while playing in sync.
func (e *Engine) browsableLabel(scrubIndex, maxIndex int, inSyncPlayback bool) string {
	digits := int(math.Log10(float64(e.config.FrameBufferSize))) + 1

	prefix, suffix := "", ""
	if inSyncPlayback {
		prefix, suffix = "[", "]"
	}

	return fmt.Sprintf("%s%0*d/%0*d%s", prefix, digits, scrubIndex+1, digits, maxIndex+1, suffix)
}

// roundShiftAwayFromZero pads a nonzero right-side time shift outward to
// the next 2 ms boundary so the realigned frame pair lands on the intended
// side of the tolerance.
func roundShiftAwayFromZero(shift int64) int64 {
	switch {
	case shift > 0:
		return (shift/1000 + 2) * 1000
	case shift < 0:
		return (shift/1000 - 2) * 1000
	default:
		return 0
	}
}

// performSeek runs the cross-thread seek protocol: quiesce both pipelines
// through the barrier, cycle and drain all four queues, reinitialize the
// filter graphs, reposition both demuxers, and pull one fresh frame per
// side to reset the PTS baselines. It returns the effective right-side time
// shift and a user-visible message when a forward seek was rolled back.
func (e *Engine) performSeek(seek SeekRequest, states [sideCount]*sideState,
	totalRightShifted *int,
) (int64, string, error) {
	var message string

	*totalRightShifted += seek.ShiftRightFrames

	// Express the cumulative frame shift in current PTS-delta units.
	shiftDelta := states[Right].delta
	if shiftDelta <= 0 {
		shiftDelta = fallbackShiftDeltaUs
	}

	rightTimeShift := e.timeShift + int64(*totalRightShifted)*shiftDelta

	e.readyToSeek.reset()
	e.seeking.Store(true)

	e.frameQueues[Left].Empty()
	e.frameQueues[Right].Empty()

	for !e.readyToSeek.allReady() {
		if !e.keepRunning() {
			return rightTimeShift, "", nil
		}

		time.Sleep(parkInterval)
	}

	for _, side := range sides {
		e.packetQueues[side].Stop()
		e.frameQueues[side].Stop()

		e.packetQueues[side].Empty()
		e.frameQueues[side].Empty()
	}

	for _, side := range sides {
		if err := e.filterers[side].Reinit(); err != nil {
			return rightTimeShift, "", fmt.Errorf("%s: reinitializing filter graph failed: %w", side, err)
		}
	}

	// Both targets are computed off the left timeline so the sides stay
	// aligned; each side adds its own container start time back in.
	leftPosition := float64(states[Left].pts)*avTimeToSec + states[Left].startTime
	rightPosition := float64(states[Left].pts)*avTimeToSec + states[Right].startTime

	var nextLeft, nextRight float64

	if seek.FromStart {
		nextLeft = e.shortestDuration*seek.Relative + states[Left].startTime
		nextRight = e.shortestDuration*seek.Relative + states[Right].startTime
	} else {
		nextLeft = leftPosition + seek.Relative
		nextRight = rightPosition + seek.Relative

		if rightTimeShift < 0 {
			nextRight += float64(rightTimeShift+states[Right].delta) * avTimeToSec
		}
	}

	backward := seek.Relative < 0 || seek.ShiftRightFrames != 0

	log.Debug().Float64(lPosition, nextLeft).Stringer(lSide, Left).
		Bool(lBackward, backward).Int64(lTimeShift, rightTimeShift).Msg("seeking")
	log.Debug().Float64(lPosition, nextRight).Stringer(lSide, Right).
		Bool(lBackward, backward).Msg("seeking")

	if (!e.demuxers[Left].Seek(nextLeft, backward) && !backward) ||
		(!e.demuxers[Right].Seek(nextRight, backward) && !backward) {
		// Restore the previous position if a forward seek went past the end.
		message = "unable to seek past end of file"

		e.demuxers[Left].Seek(leftPosition, true)
		e.demuxers[Right].Seek(rightPosition, true)
	}

	e.seeking.Store(false)

	for _, side := range sides {
		e.packetQueues[side].Restart()
		e.frameQueues[side].Restart()
	}

	if f, ok := e.frameQueues[Left].Pop(); ok {
		st := states[Left]
		st.setFetched(f)
		st.pts = f.PTS()
		st.previousDecodedPictures = -1
		st.decodedPictures = 1
		st.history.Clear()
	}

	rightTimeShift = roundShiftAwayFromZero(rightTimeShift)

	if f, ok := e.frameQueues[Right].Pop(); ok {
		st := states[Right]
		st.setFetched(f)
		st.pts = f.PTS() - rightTimeShift
		st.previousDecodedPictures = -1
		st.decodedPictures = 1
		st.history.Clear()
	}

	return rightTimeShift, message, nil
}
