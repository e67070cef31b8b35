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
	"strings"

	"github.com/asticode/go-astiav"

	"github.com/TurbineOne/video-compare/pkg/compare"
)

// nameToHwDeviceType maps config spellings to ffmpeg hardware device
// types.
var nameToHwDeviceType = map[string]astiav.HardwareDeviceType{
	"cuda":         astiav.HardwareDeviceTypeCUDA,
	"d3d11va":      astiav.HardwareDeviceTypeD3D11VA,
	"qsv":          astiav.HardwareDeviceTypeQSV,
	"vaapi":        astiav.HardwareDeviceTypeVAAPI,
	"videotoolbox": astiav.HardwareDeviceTypeVideoToolbox,
	"vulkan":       astiav.HardwareDeviceTypeVulkan,
}

type noDecoderError struct {
	codecID astiav.CodecID
}

func (e *noDecoderError) Error() string {
	return fmt.Sprintf("no decoder found for codec %s", e.codecID.Name())
}

type hwAccelError struct {
	name   string
	reason string
}

func (e *hwAccelError) Error() string {
	return fmt.Sprintf("hardware acceleration %q unavailable: %s", e.name, e.reason)
}

// VideoDecoder turns compressed packets into decoded pictures for one
// input's video stream, optionally through a hardware decode backend.
type VideoDecoder struct {
	url string

	decCodecContext *astiav.CodecContext
	timeBase        astiav.Rational
	startTime       int64

	// frameDuration is the nominal frame interval in AV_TIME_BASE ticks,
	// from the guessed frame rate. It seeds frame durations until the
	// engine's own estimate takes over.
	frameDuration int64

	hwDeviceContext *astiav.HardwareDeviceContext
	hwPixelFormat   astiav.PixelFormat
}

// NewVideoDecoder returns a new VideoDecoder instance. Must be initialized
// with Init() and freed with Close().
func NewVideoDecoder() *VideoDecoder {
	return &VideoDecoder{
		hwPixelFormat: astiav.PixelFormatNone,
	}
}

// Init opens a decoder for the demuxer's video stream. hwAccel names a
// hardware backend from nameToHwDeviceType, or is empty for software
// decoding.
func (d *VideoDecoder) Init(demuxer *Demuxer, hwAccel string) error {
	stream := demuxer.Stream()
	codecParams := stream.CodecParameters()

	decCodec := astiav.FindDecoder(codecParams.CodecID())
	if decCodec == nil {
		return &noDecoderError{codecID: codecParams.CodecID()}
	}

	d.url = demuxer.url
	d.decCodecContext = astiav.AllocCodecContext(decCodec)

	if err := codecParams.ToCodecContext(d.decCodecContext); err != nil {
		return fmt.Errorf("copying codec parameters failed: %w", err)
	}

	frameRate := demuxer.FormatContext().GuessFrameRate(stream, nil)
	d.decCodecContext.SetFramerate(frameRate)

	if frameRate.Num() > 0 {
		d.frameDuration = int64(float64(astiav.TimeBase) *
			float64(frameRate.Den()) / float64(frameRate.Num()))
	}

	if hwAccel != "" {
		if err := d.initHardware(decCodec, hwAccel); err != nil {
			return err
		}
	}

	if err := d.decCodecContext.Open(decCodec, nil); err != nil {
		return fmt.Errorf("opening decoder context failed: %w", err)
	}

	d.timeBase = stream.TimeBase()
	d.startTime = demuxer.StartTime()

	log.Info().Str(lURL, d.url).Str(lCodec, decCodec.Name()).
		Int(lWidth, d.decCodecContext.Width()).Int(lHeight, d.decCodecContext.Height()).
		Stringer(lPixelFormat, d.decCodecContext.PixelFormat()).
		Int64(lDuration, d.frameDuration).Str(lDecoder, hwAccel).
		Msg("decoder opened")

	return nil
}

// initHardware selects the hardware pixel format the codec supports for
// the requested backend and attaches a device context.
func (d *VideoDecoder) initHardware(decCodec *astiav.Codec, hwAccel string) error {
	hwType, ok := nameToHwDeviceType[strings.ToLower(hwAccel)]
	if !ok {
		return &hwAccelError{name: hwAccel, reason: "unknown device type"}
	}

	for _, hwCfg := range decCodec.HardwareConfigs() {
		if hwCfg.HardwareDeviceType() != hwType {
			continue
		}

		if !hwCfg.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx) {
			continue
		}

		d.hwPixelFormat = hwCfg.PixelFormat()

		break
	}

	if d.hwPixelFormat == astiav.PixelFormatNone {
		return &hwAccelError{name: hwAccel, reason: "codec has no device context config"}
	}

	d.decCodecContext.SetPixelFormatCallback(func(pfs []astiav.PixelFormat) astiav.PixelFormat {
		for _, pf := range pfs {
			if pf == d.hwPixelFormat {
				return pf
			}
		}

		log.Error().Str(lURL, d.url).Stringer(lPixelFormat, d.hwPixelFormat).
			Msg("hardware pixel format not offered by decoder")

		return astiav.PixelFormatNone
	})

	hwDeviceContext, err := astiav.CreateHardwareDeviceContext(hwType, "", nil, 0)
	if err != nil {
		return fmt.Errorf("creating %s device context failed: %w", hwAccel, err)
	}

	d.hwDeviceContext = hwDeviceContext
	d.decCodecContext.SetHardwareDeviceContext(hwDeviceContext)

	return nil
}

// Close frees ffmpeg resources associated with the decoder.
func (d *VideoDecoder) Close() {
	if d.decCodecContext != nil {
		d.decCodecContext.Free()
		d.decCodecContext = nil
	}

	if d.hwDeviceContext != nil {
		d.hwDeviceContext.Free()
		d.hwDeviceContext = nil
	}
}

// Send feeds one compressed packet, or nil to begin a flush. It reports
// false without error when the decoder is full; the caller drains Receive
// and re-sends.
func (d *VideoDecoder) Send(p compare.Packet) (bool, error) {
	var pkt *astiav.Packet
	if p != nil {
		pkt = p.(*Packet).pkt //nolint:forcetypeassert // Always our own Packet.
	}

	if err := d.decCodecContext.SendPacket(pkt); err != nil {
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return false, nil
		}

		return false, fmt.Errorf("sending packet to decoder failed: %w", err)
	}

	return true, nil
}

// Receive returns the next decoded picture, or nil once the decoder has no
// more pictures available right now.
func (d *VideoDecoder) Receive() (compare.Frame, error) {
	frame := astiav.AllocFrame()

	if err := d.decCodecContext.ReceiveFrame(frame); err != nil {
		frame.Free()

		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return nil, nil
		}

		return nil, fmt.Errorf("receiving frame from decoder failed: %w", err)
	}

	return newFrame(frame, d.normalizePTS(frame.Pts()), d.frameDuration), nil
}

// normalizePTS converts a stream-timebase timestamp to AV_TIME_BASE ticks
// counted from the start of the input.
func (d *VideoDecoder) normalizePTS(pts int64) int64 {
	if pts == astiav.NoPtsValue {
		return 0
	}

	return astiav.RescaleQ(pts, d.timeBase, astiav.TimeBaseQ) - d.startTime
}

// Flush discards all pictures cached inside the decoder. Called while
// quiescing for a seek.
func (d *VideoDecoder) Flush() {
	d.decCodecContext.FlushBuffers()
}

// IsAccelerated reports whether f still resides in device memory.
func (d *VideoDecoder) IsAccelerated(f compare.Frame) bool {
	if d.hwDeviceContext == nil {
		return false
	}

	return f.(*Frame).frame.PixelFormat() == d.hwPixelFormat //nolint:forcetypeassert // Always our own Frame.
}

// TransferToSystem copies an accelerated picture into system memory. The
// input frame remains owned by the caller.
func (d *VideoDecoder) TransferToSystem(f compare.Frame) (compare.Frame, error) {
	src := f.(*Frame) //nolint:forcetypeassert // Always our own Frame.

	swFrame := astiav.AllocFrame()
	if err := src.frame.TransferHardwareData(swFrame); err != nil {
		swFrame.Free()

		return nil, fmt.Errorf("transferring frame from device to system memory failed: %w", err)
	}

	swFrame.SetPts(src.frame.Pts())

	return newFrame(swFrame, src.pts, src.duration), nil
}

// StreamTimeBase is the video stream's time base, needed for filter graph
// setup.
func (d *VideoDecoder) StreamTimeBase() astiav.Rational {
	return d.timeBase
}

// CodecContext exposes the opened decoder context for filter graph setup.
func (d *VideoDecoder) CodecContext() *astiav.CodecContext {
	return d.decCodecContext
}

// StartTime is the container start offset in AV_TIME_BASE ticks.
func (d *VideoDecoder) StartTime() int64 {
	return d.startTime
}

// FrameDuration is the nominal frame interval in AV_TIME_BASE ticks.
func (d *VideoDecoder) FrameDuration() int64 {
	return d.frameDuration
}
