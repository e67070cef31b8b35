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
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/TurbineOne/video-compare/pkg/compare"
)

// FormatConverter scales filtered pictures to a common geometry and packed
// RGB so both sides become directly comparable. The scale context is
// rebuilt lazily whenever the source geometry changes, which filters like
// crop can do mid-stream.
type FormatConverter struct {
	// Destination geometry; zero means "same as source".
	width  int
	height int

	softwareScaleContext *astiav.SoftwareScaleContext

	srcWidth  int
	srcHeight int
	srcPix    astiav.PixelFormat
}

// NewFormatConverter returns a converter producing width x height RGB24
// pictures. Must be freed with Close().
func NewFormatConverter(width, height int) *FormatConverter {
	return &FormatConverter{
		width:  width,
		height: height,
	}
}

// Close frees the scale context.
func (c *FormatConverter) Close() {
	if c.softwareScaleContext != nil {
		c.softwareScaleContext.Free()
		c.softwareScaleContext = nil
	}
}

func (c *FormatConverter) ensure(src *astiav.Frame) error {
	srcWidth, srcHeight := src.Width(), src.Height()
	srcPix := src.PixelFormat()

	if c.softwareScaleContext != nil &&
		srcWidth == c.srcWidth && srcHeight == c.srcHeight && srcPix == c.srcPix {
		return nil
	}

	c.Close()

	dstWidth, dstHeight := c.width, c.height
	if dstWidth == 0 || dstHeight == 0 {
		dstWidth, dstHeight = srcWidth, srcHeight
	}

	softwareScaleContext, err := astiav.CreateSoftwareScaleContext(
		srcWidth, srcHeight, srcPix,
		dstWidth, dstHeight, astiav.PixelFormatRgb24,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBicubic),
	)
	if err != nil {
		return fmt.Errorf("creating scale context (%dx%d %s -> %dx%d rgb24) failed: %w",
			srcWidth, srcHeight, srcPix, dstWidth, dstHeight, err)
	}

	c.softwareScaleContext = softwareScaleContext
	c.srcWidth, c.srcHeight, c.srcPix = srcWidth, srcHeight, srcPix

	return nil
}

// Convert scales one picture. The input remains owned by the caller; the
// returned picture is independent.
func (c *FormatConverter) Convert(f compare.Frame) (compare.Frame, error) {
	src := f.(*Frame) //nolint:forcetypeassert // Always our own Frame.

	if err := c.ensure(src.frame); err != nil {
		return nil, err
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(c.softwareScaleContext.DestinationWidth())
	dst.SetHeight(c.softwareScaleContext.DestinationHeight())
	dst.SetPixelFormat(astiav.PixelFormatRgb24)

	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()

		return nil, fmt.Errorf("allocating conversion buffer failed: %w", err)
	}

	if err := c.softwareScaleContext.ScaleFrame(src.frame, dst); err != nil {
		dst.Free()

		return nil, fmt.Errorf("scaling frame failed: %w", err)
	}

	dst.SetPts(src.frame.Pts())

	return newFrame(dst, src.pts, src.duration), nil
}
