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

// Package media adapts FFmpeg (via go-astiav) to the interfaces the
// comparison engine drives: demultiplexing, video decoding with optional
// hardware acceleration, filter graphs, and pixel format conversion.
// Timestamps leaving this package are normalized to AV_TIME_BASE ticks
// counted from the start of the input.
package media

import (
	"github.com/rs/zerolog"
)

const (
	lCodec       = "codecID"
	lDecoder     = "decoder"
	lDuration    = "duration"
	lFilter      = "filter"
	lHeight      = "height"
	lIndex       = "streamIndex"
	lPixelFormat = "pixelFormat"
	lStartTime   = "startTime"
	lStreamTime  = "streamTime"
	lURL         = "url"
	lWidth       = "width"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log zerolog.Logger

// Config configures media input handling.
type Config struct {
	HwAccel        string `yaml:"hwAccel" env:"HW_ACCEL" doc:"Hardware decode backend (cuda, vaapi, videotoolbox, qsv, d3d11va, vulkan). Empty disables"`
	FfmpegLogLevel string `yaml:"ffmpegLogLevel" env:"FFMPEG_LOG_LEVEL" doc:"FFmpeg log level: quiet, panic, fatal, error, warning, info, verbose, debug"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		HwAccel:        "",
		FfmpegLogLevel: "error",
	}
}

// Init wires this package's logger and routes FFmpeg's internal logs
// through it. Call once before opening any input.
func Init(config *Config, logger *zerolog.Logger) {
	log = logger.With().Str("pkg", "media").Logger()

	ffmpegLoggerSetup(config)
}
