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

package main

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TurbineOne/video-compare/pkg/compare"
	"github.com/TurbineOne/video-compare/pkg/display"
	"github.com/TurbineOne/video-compare/pkg/interrupt"
	"github.com/TurbineOne/video-compare/pkg/media"
	"github.com/TurbineOne/video-compare/pkg/mimer"
	"github.com/TurbineOne/video-compare/pkg/timing"
)

var log zerolog.Logger //nolint:gochecknoglobals // Don't care.

// pipeline bundles one side's media stages so they can be closed together,
// newest-first.
type pipeline struct {
	demuxer   *media.Demuxer
	decoder   *media.VideoDecoder
	filterer  *media.VideoFilterer
	converter *media.FormatConverter
}

// openPipeline opens one input end to end. On error, anything already open
// is closed before returning.
func openPipeline(url, filter string) (*pipeline, error) {
	if mimeType := mimer.GetContentType(url); !mimer.IsVideo(mimeType) {
		log.Warn().Str("url", url).Str("mimeType", mimeType).
			Msg("input does not look like video, trying anyway")
	}

	demuxer := media.NewDemuxer()
	if err := demuxer.Init(url); err != nil {
		return nil, err
	}

	decoder := media.NewVideoDecoder()
	if err := decoder.Init(demuxer, currentConfig.Media.HwAccel); err != nil {
		demuxer.Close()

		return nil, err
	}

	filterer := media.NewVideoFilterer()
	if err := filterer.Init(decoder, filter); err != nil {
		decoder.Close()
		demuxer.Close()

		return nil, err
	}

	return &pipeline{
		demuxer:   demuxer,
		decoder:   decoder,
		filterer:  filterer,
		converter: media.NewFormatConverter(currentConfig.Width, currentConfig.Height),
	}, nil
}

func (p *pipeline) close() {
	p.converter.Close()
	p.filterer.Close()
	p.decoder.Close()
	p.demuxer.Close()
}

func (p *pipeline) options() compare.Pipeline {
	return compare.Pipeline{
		Demuxer:   p.demuxer,
		Decoder:   p.decoder,
		Filterer:  p.filterer,
		Converter: p.converter,
	}
}

func main() {
	initConfig() // May early exit if config init fails.

	const argCount = 3
	if len(os.Args) < argCount {
		log.Error().Msg("usage: videocompare <left> <right>")

		return
	}

	media.Init(&currentConfig.Media, &log)

	left, err := openPipeline(os.Args[1], currentConfig.LeftFilter)
	if err != nil {
		log.Error().Err(err).Str("url", os.Args[1]).Msg("failed to open left input")

		return
	}
	defer left.close()

	right, err := openPipeline(os.Args[2], currentConfig.RightFilter)
	if err != nil {
		log.Error().Err(err).Str("url", os.Args[2]).Msg("failed to open right input")

		return
	}
	defer right.close()

	console := display.New(&currentConfig.Display, &log)

	engine, err := compare.New(&currentConfig.Compare, compare.Options{
		Left:         left.options(),
		Right:        right.options(),
		Display:      console,
		Timer:        timing.New(),
		RefreshTimer: timing.New(),
	}, &log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize engine")

		return
	}

	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		return engine.Run()
	})

	group.Go(func() error {
		err := interrupt.Run(ctx)
		console.Quit()

		// The engine finishing on its own cancels ctx. That's not a
		// failure of this goroutine.
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	err = group.Wait()

	sigError := &interrupt.SignalError{}
	if errors.As(err, &sigError) {
		log.Info().Msg(err.Error())
	} else if err != nil {
		log.Error().Err(err).Msg("comparison failed")
	}

	log.Info().Msg("stopped")
}
