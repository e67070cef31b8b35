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
	"fmt"
	"io"
	"time"
)

// demultiplex is one side's demultiplex worker. It forwards packets of the
// active video stream into the side's packet queue and parks while a seek
// drains the pipeline or after end-of-stream. A failure is routed through
// the error holder and force-quits this side's queues so the paired decode
// stage unblocks.
func (e *Engine) demultiplex(side Side) {
	if err := e.runDemultiplex(side); err != nil {
		log.Error().Err(err).Stringer(lSide, side).Msg("demultiplex stage failed")

		e.faults.store(err)
		e.quitQueues(side)
	}
}

func (e *Engine) runDemultiplex(side Side) error {
	demuxer := e.demuxers[side]
	packets := e.packetQueues[side]

	for e.keepRunning() {
		// Once this side's decoder has quiesced for a seek, reading ahead
		// would race the seek, so park until the loop disarms it.
		if e.seeking.Load() && e.readyToSeek.get(stageDecoder, side) {
			e.readyToSeek.set(stageDemultiplexer, side)

			time.Sleep(parkInterval)

			continue
		}

		if packets.IsStopped() {
			time.Sleep(parkInterval)

			continue
		}

		pkt, err := demuxer.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Park rather than exit; a later seek may resume us.
				packets.Stop()

				continue
			}

			return fmt.Errorf("%s: reading packet failed: %w", side, err)
		}

		if pkt.StreamIndex() != demuxer.VideoStreamIndex() {
			pkt.Release()

			continue
		}

		if !packets.Push(pkt) {
			pkt.Release()

			return nil // queue quit, orderly shutdown
		}
	}

	return nil
}
