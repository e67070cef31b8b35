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

// Package display provides a headless rendering and input layer for the
// comparison engine. Refreshes are reported through the structured log;
// input intents arrive programmatically over a channel, so a caller (or a
// test harness) can drive playback, seeks, and scrubbing without a GUI.
package display

import (
	"github.com/rs/zerolog"

	"github.com/TurbineOne/video-compare/pkg/compare"
)

const (
	lLabel    = "label"
	lLeftPTS  = "leftPts"
	lMessage  = "message"
	lRefresh  = "refreshCount"
	lRightPTS = "rightPts"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log zerolog.Logger

// Config configures the headless display.
type Config struct {
	AutoPlay     bool `yaml:"autoPlay" env:"AUTO_PLAY" doc:"Start playing immediately instead of paused"`
	RefreshLimit int  `yaml:"refreshLimit" env:"REFRESH_LIMIT" doc:"Quit after this many refreshes; 0 runs until interrupted"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		AutoPlay:     true,
		RefreshLimit: 0,
	}
}

// Console is the headless Display implementation. The engine's comparison
// loop is the only caller of Input and Refresh; Send and Quit may be called
// from any goroutine.
type Console struct {
	config *Config

	inputC chan compare.InputState
	quitC  chan struct{}

	// playing, swapped, and speed are value fields of InputState: each
	// poll must report the current setting, so the last scripted value is
	// carried forward.
	playing      bool
	swapped      bool
	speed        float64
	refreshCount int
}

// New returns a new Console instance.
func New(config *Config, logger *zerolog.Logger) *Console {
	log = logger.With().Str("pkg", "display").Logger()

	return &Console{
		config:  config,
		inputC:  make(chan compare.InputState, 16),
		quitC:   make(chan struct{}),
		playing: config.AutoPlay,
	}
}

// Send queues one input intent for the engine's next poll.
func (c *Console) Send(in compare.InputState) {
	select {
	case c.inputC <- in:
	case <-c.quitC:
	}
}

// Quit asks the engine to stop at its next input poll. Safe to call more
// than once.
func (c *Console) Quit() {
	select {
	case <-c.quitC:
	default:
		close(c.quitC)
	}
}

// Input returns the pending queued intent, or the steady play/pause state
// when no intent is queued.
func (c *Console) Input() compare.InputState {
	select {
	case <-c.quitC:
		return compare.InputState{Quit: true}
	default:
	}

	if c.config.RefreshLimit > 0 && c.refreshCount >= c.config.RefreshLimit {
		log.Info().Int(lRefresh, c.refreshCount).Msg("refresh limit reached")

		return compare.InputState{Quit: true}
	}

	select {
	case in := <-c.inputC:
		c.playing = in.Play
		c.swapped = in.SwapSides

		if in.SpeedFactor > 0 {
			c.speed = in.SpeedFactor
		}

		return in
	default:
		return compare.InputState{
			Play:        c.playing,
			SwapSides:   c.swapped,
			SpeedFactor: c.speed,
		}
	}
}

// Refresh reports one displayed pair.
func (c *Console) Refresh(left, right compare.Frame, label, message string) {
	c.refreshCount++

	event := log.Debug().Int64(lLeftPTS, left.PTS()).Int64(lRightPTS, right.PTS()).
		Str(lLabel, label).Int(lRefresh, c.refreshCount)

	if message != "" {
		event = event.Str(lMessage, message)
	}

	event.Msg("refresh")
}
