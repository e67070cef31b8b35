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
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/TurbineOne/video-compare/pkg/compare"
)

// VideoFilterer runs decoded pictures for one side through an ffmpeg
// filter graph described by a filter string, e.g. "hflip" or
// "yadif,format=yuv420p". An empty description becomes the passthrough
// "null" filter. Reinit rebuilds the whole graph, which is how seek
// discards its internal state.
type VideoFilterer struct {
	description string

	width             int
	height            int
	pixelFormat       astiav.PixelFormat
	sampleAspectRatio astiav.Rational
	timeBase          astiav.Rational

	startTime     int64
	frameDuration int64

	filterGraph   *astiav.FilterGraph
	buffersrcCtx  *astiav.BuffersrcFilterContext
	buffersinkCtx *astiav.BuffersinkFilterContext

	sourceClosed bool
}

// NewVideoFilterer returns a new VideoFilterer instance. Must be
// initialized with Init() and freed with Close().
func NewVideoFilterer() *VideoFilterer {
	return &VideoFilterer{}
}

// Init captures the stream geometry from an opened decoder and builds the
// first graph.
func (f *VideoFilterer) Init(decoder *VideoDecoder, description string) error {
	if description == "" {
		description = "null"
	}

	decCodecContext := decoder.CodecContext()

	f.description = description
	f.width = decCodecContext.Width()
	f.height = decCodecContext.Height()
	f.pixelFormat = decCodecContext.PixelFormat()
	f.sampleAspectRatio = decCodecContext.SampleAspectRatio()
	f.timeBase = decoder.StreamTimeBase()
	f.startTime = decoder.StartTime()
	f.frameDuration = decoder.FrameDuration()

	// A hardware decoder reports its device pixel format; the filter graph
	// sees frames only after transfer to system memory.
	if decoder.hwPixelFormat != astiav.PixelFormatNone {
		f.pixelFormat = astiav.PixelFormatNv12
	}

	log.Info().Str(lFilter, f.description).Stringer(lPixelFormat, f.pixelFormat).
		Msg("filter graph configured")

	return f.initGraph()
}

func (f *VideoFilterer) initGraph() error {
	filterGraph := astiav.AllocFilterGraph()
	if filterGraph == nil {
		return errors.New("allocating filter graph failed")
	}

	buffersrc := astiav.FindFilterByName("buffer")
	if buffersrc == nil {
		filterGraph.Free()

		return errors.New("buffer filter not found")
	}

	buffersink := astiav.FindFilterByName("buffersink")
	if buffersink == nil {
		filterGraph.Free()

		return errors.New("buffersink filter not found")
	}

	buffersrcCtx, err := filterGraph.NewBuffersrcFilterContext(buffersrc, "in")
	if err != nil {
		filterGraph.Free()

		return fmt.Errorf("creating buffersrc context failed: %w", err)
	}

	params := astiav.AllocBuffersrcFilterContextParameters()
	defer params.Free()

	params.SetWidth(f.width)
	params.SetHeight(f.height)
	params.SetPixelFormat(f.pixelFormat)
	params.SetSampleAspectRatio(f.sampleAspectRatio)
	params.SetTimeBase(f.timeBase)

	if err = buffersrcCtx.SetParameters(params); err != nil {
		filterGraph.Free()

		return fmt.Errorf("setting buffersrc context parameters failed: %w", err)
	}

	if err = buffersrcCtx.Initialize(nil); err != nil {
		filterGraph.Free()

		return fmt.Errorf("initializing buffersrc context failed: %w", err)
	}

	buffersinkCtx, err := filterGraph.NewBuffersinkFilterContext(buffersink, "out")
	if err != nil {
		filterGraph.Free()

		return fmt.Errorf("creating buffersink context failed: %w", err)
	}

	filterOutputs := astiav.AllocFilterInOut()
	defer filterOutputs.Free()
	filterOutputs.SetName("in")
	filterOutputs.SetFilterContext(buffersrcCtx.FilterContext())
	filterOutputs.SetPadIdx(0)
	filterOutputs.SetNext(nil)

	filterInputs := astiav.AllocFilterInOut()
	defer filterInputs.Free()
	filterInputs.SetName("out")
	filterInputs.SetFilterContext(buffersinkCtx.FilterContext())
	filterInputs.SetPadIdx(0)
	filterInputs.SetNext(nil)

	if err = filterGraph.Parse(f.description, filterInputs, filterOutputs); err != nil {
		filterGraph.Free()

		return fmt.Errorf("parsing filter description %q failed: %w", f.description, err)
	}

	if err = filterGraph.Configure(); err != nil {
		filterGraph.Free()

		return fmt.Errorf("configuring filter graph failed: %w", err)
	}

	f.freeGraph()

	f.filterGraph = filterGraph
	f.buffersrcCtx = buffersrcCtx
	f.buffersinkCtx = buffersinkCtx
	f.sourceClosed = false

	return nil
}

func (f *VideoFilterer) freeGraph() {
	if f.filterGraph != nil {
		f.filterGraph.Free()
		f.filterGraph = nil
		f.buffersrcCtx = nil
		f.buffersinkCtx = nil
	}
}

// Close frees the graph.
func (f *VideoFilterer) Close() {
	f.freeGraph()
}

// Reinit rebuilds the graph, discarding all buffered pictures. Called
// between seeks.
func (f *VideoFilterer) Reinit() error {
	return f.initGraph()
}

// Send feeds a decoded picture into the graph, or nil to flush delayed
// pictures. The caller keeps ownership of the picture.
func (f *VideoFilterer) Send(frame compare.Frame) error {
	var av *astiav.Frame
	if frame != nil {
		av = frame.(*Frame).frame //nolint:forcetypeassert // Always our own Frame.
	}

	err := f.buffersrcCtx.AddFrame(av, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef))
	if err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("adding frame to filter graph failed: %w", err)
	}

	return nil
}

// CloseSource signals end-of-stream on the graph's source.
func (f *VideoFilterer) CloseSource() error {
	if f.sourceClosed {
		return nil
	}

	f.sourceClosed = true

	err := f.buffersrcCtx.AddFrame(nil, astiav.NewBuffersrcFlags())
	if err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("closing filter graph source failed: %w", err)
	}

	return nil
}

// Receive returns the next filtered picture, or nil once the graph is
// drained for now.
func (f *VideoFilterer) Receive() (compare.Frame, error) {
	filtered := astiav.AllocFrame()

	if err := f.buffersinkCtx.GetFrame(filtered, astiav.NewBuffersinkFlags()); err != nil {
		filtered.Free()

		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting frame from filter graph failed: %w", err)
	}

	pts := filtered.Pts()
	if pts != astiav.NoPtsValue {
		pts = astiav.RescaleQ(pts, f.timeBase, astiav.TimeBaseQ) - f.startTime
	} else {
		pts = 0
	}

	return newFrame(filtered, pts, f.frameDuration), nil
}
