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
	"io"

	"github.com/asticode/go-astiav"

	"github.com/TurbineOne/video-compare/pkg/compare"
)

type noVideoStreamError struct {
	url string
}

func (e *noVideoStreamError) Error() string {
	return fmt.Sprintf("no video stream found in %q", e.url)
}

// Demuxer reads container packets for a single input file or URL. It is
// driven from one goroutine at a time.
type Demuxer struct {
	url string

	inputFormatContext *astiav.FormatContext
	videoStream        *astiav.Stream

	// startTime is the container's start offset in AV_TIME_BASE ticks,
	// zero when the container does not declare one.
	startTime int64
}

// NewDemuxer returns a new Demuxer instance. Must be initialized with
// Init() and freed with Close().
func NewDemuxer() *Demuxer {
	return &Demuxer{}
}

// Init opens the input and selects its first video stream.
func (d *Demuxer) Init(rawURL string) error {
	d.url = rawURL
	d.inputFormatContext = astiav.AllocFormatContext()

	if err := d.inputFormatContext.OpenInput(rawURL, nil, nil); err != nil {
		return fmt.Errorf("opening input %q failed: %w", rawURL, err)
	}

	if err := d.inputFormatContext.FindStreamInfo(nil); err != nil {
		d.inputFormatContext.CloseInput()

		return fmt.Errorf("finding stream info for %q failed: %w", rawURL, err)
	}

	for _, stream := range d.inputFormatContext.Streams() {
		if stream.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			d.videoStream = stream

			break
		}
	}

	if d.videoStream == nil {
		d.inputFormatContext.CloseInput()

		return &noVideoStreamError{url: rawURL}
	}

	if st := d.videoStream.StartTime(); st != astiav.NoPtsValue {
		d.startTime = astiav.RescaleQ(st, d.videoStream.TimeBase(), astiav.TimeBaseQ)
	}

	log.Info().Str(lURL, d.url).Int(lIndex, d.videoStream.Index()).
		Str(lCodec, d.videoStream.CodecParameters().CodecID().Name()).
		Int64(lStartTime, d.startTime).Int64(lDuration, d.inputFormatContext.Duration()).
		Msg("input opened")

	return nil
}

// Close frees ffmpeg resources associated with the input.
func (d *Demuxer) Close() {
	if d.inputFormatContext != nil {
		d.inputFormatContext.CloseInput()
		d.inputFormatContext.Free()
		d.inputFormatContext = nil
	}
}

// ReadPacket returns the next container packet, or io.EOF at
// end-of-stream. This read is blocking.
func (d *Demuxer) ReadPacket() (compare.Packet, error) {
	pkt := astiav.AllocPacket()

	if err := d.inputFormatContext.ReadFrame(pkt); err != nil {
		pkt.Free()

		if errors.Is(err, astiav.ErrEof) {
			return nil, io.EOF
		}

		return nil, fmt.Errorf("reading from %q failed: %w", d.url, err)
	}

	return &Packet{pkt: pkt}, nil
}

// Seek positions the input near position (seconds). backward requests the
// keyframe at or before the target so decoding can resume cleanly.
func (d *Demuxer) Seek(position float64, backward bool) bool {
	streamTime := int64(position * float64(astiav.TimeBase))

	flags := astiav.NewSeekFlags()
	if backward {
		flags = astiav.NewSeekFlags(astiav.SeekFlagBackward)
	}

	if err := d.inputFormatContext.SeekFrame(-1, streamTime, flags); err != nil {
		log.Info().Str(lURL, d.url).Int64(lStreamTime, streamTime).
			Err(err).Msg("error seeking")

		return false
	}

	return true
}

// Duration is the container duration in AV_TIME_BASE ticks.
func (d *Demuxer) Duration() int64 {
	return d.inputFormatContext.Duration()
}

// StartTime is the container's start offset in AV_TIME_BASE ticks.
func (d *Demuxer) StartTime() int64 {
	return d.startTime
}

func (d *Demuxer) VideoStreamIndex() int {
	return d.videoStream.Index()
}

// Stream exposes the selected video stream so decoder and filter setup can
// read its parameters.
func (d *Demuxer) Stream() *astiav.Stream {
	return d.videoStream
}

// FormatContext exposes the input context for frame rate guessing.
func (d *Demuxer) FormatContext() *astiav.FormatContext {
	return d.inputFormatContext
}
