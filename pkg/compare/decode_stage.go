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
	"time"
)

// decodeVideo is one side's decode worker. It pops packets, drives the
// external decode/filter/convert chain, and pushes finished frames into the
// side's frame queue. Failures route through the error holder like the
// demultiplex stage's.
func (e *Engine) decodeVideo(side Side) {
	if err := e.runDecode(side); err != nil {
		log.Error().Err(err).Stringer(lSide, side).Msg("decode stage failed")

		e.faults.store(err)
		e.quitQueues(side)
	}
}

func (e *Engine) runDecode(side Side) error {
	packets := e.packetQueues[side]
	frames := e.frameQueues[side]

	// flushAndSignal quiesces for a seek. The readiness flag must only be
	// set strictly after the decoder flush, or the seek could proceed with
	// stale frames still in flight.
	flushAndSignal := func() {
		e.decoders[side].Flush()
		e.readyToSeek.set(stageDecoder, side)
	}

	for e.keepRunning() {
		if frames.IsStopped() {
			if e.seeking.Load() {
				flushAndSignal()
			}

			time.Sleep(parkInterval)

			continue
		}

		pkt, ok := packets.Pop()
		if !ok {
			// Flush: drain pictures still cached inside the decoder, close
			// the filter source, then flush the graph so it emits any
			// delayed pictures.
			if err := e.drainDecoder(side); err != nil {
				return err
			}

			if err := e.filterers[side].CloseSource(); err != nil {
				return fmt.Errorf("%s: closing filter source failed: %w", side, err)
			}

			if _, err := e.filterDecoded(side, nil); err != nil {
				return err
			}

			frames.Stop()

			continue
		}

		if e.seeking.Load() {
			pkt.Release()
			flushAndSignal()

			time.Sleep(parkInterval)

			continue
		}

		err := e.decodePacket(side, pkt)
		pkt.Release()

		if err != nil {
			return err
		}
	}

	return nil
}

// decodePacket feeds one packet, re-sending as long as the decoder reports
// it is full, unless a seek preempts the retry.
func (e *Engine) decodePacket(side Side, pkt Packet) error {
	for {
		sent, err := e.processPacket(side, pkt)
		if err != nil {
			return err
		}

		if sent || e.seeking.Load() {
			return nil
		}
	}
}

// processPacket sends pkt (nil to flush) and drains every picture currently
// available from the decoder. One compressed packet may yield zero, one, or
// multiple pictures.
func (e *Engine) processPacket(side Side, pkt Packet) (bool, error) {
	decoder := e.decoders[side]

	sent, err := decoder.Send(pkt)
	if err != nil {
		return false, fmt.Errorf("%s: sending packet to decoder failed: %w", side, err)
	}

	for {
		frame, err := decoder.Receive()
		if err != nil {
			return false, fmt.Errorf("%s: receiving picture from decoder failed: %w", side, err)
		}

		if frame == nil {
			return sent, nil
		}

		if decoder.IsAccelerated(frame) {
			sw, err := decoder.TransferToSystem(frame)
			frame.Release()

			if err != nil {
				return false, fmt.Errorf("%s: transferring picture from GPU to CPU failed: %w", side, err)
			}

			frame = sw
		}

		pushed, err := e.filterDecoded(side, frame)
		frame.Release()

		if err != nil {
			return false, err
		}

		if !pushed {
			return sent, nil
		}
	}
}

// drainDecoder flushes the decoder by sending nil until it reports drained.
func (e *Engine) drainDecoder(side Side) error {
	for {
		sent, err := e.processPacket(side, nil)
		if err != nil {
			return err
		}

		if !sent {
			return nil
		}
	}
}

// filterDecoded passes one decoded picture (nil to flush) through the
// filter graph, converts every resulting picture, and pushes it to the
// frame queue. It reports false once the frame queue has quit.
func (e *Engine) filterDecoded(side Side, frame Frame) (bool, error) {
	if err := e.filterers[side].Send(frame); err != nil {
		return false, fmt.Errorf("%s: feeding the filter graph failed: %w", side, err)
	}

	for {
		filtered, err := e.filterers[side].Receive()
		if err != nil {
			return false, fmt.Errorf("%s: receiving from the filter graph failed: %w", side, err)
		}

		if filtered == nil {
			return true, nil
		}

		converted, err := e.converters[side].Convert(filtered)
		filtered.Release()

		if err != nil {
			return false, fmt.Errorf("%s: converting picture failed: %w", side, err)
		}

		if !e.frameQueues[side].Push(converted) {
			converted.Release()

			return false, nil
		}
	}
}
