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

import "sync"

// errorHolder is a single-slot, first-failure-wins channel between the
// worker stages and the orchestrator. Later concurrent failures are
// discarded; the orchestrator reads the slot only after all workers have
// been joined.
type errorHolder struct {
	mu  sync.RWMutex
	err error
}

// store keeps err unless a failure was already stored.
func (h *errorHolder) store(err error) {
	if err == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.err == nil {
		h.err = err
	}
}

func (h *errorHolder) hasError() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.err != nil
}

func (h *errorHolder) stored() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.err
}
