// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2025-2026 Embedfleet Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package update

import (
	"context"
	"fmt"
	"io"

	"github.com/embedfleet/updated/component"
	"github.com/embedfleet/updated/logger"
	"github.com/embedfleet/updated/slot"
)

// ISO-TP addressing bits shared with the microcontroller firmware.
const (
	canAddrIsISOTP = 1 << 8
	canAddrIsDest  = 1 << 9

	// updateNodeID is this daemon's node id on the bus.
	updateNodeID = 0xA
)

// maxMCUFirmwareLen is the largest image a microcontroller will
// accept.
const maxMCUFirmwareLen = 224 * 1024

// TxID returns the ISO-TP transmit id addressing the component's
// controller.
func TxID(c *component.CAN) uint32 {
	return c.Address | canAddrIsISOTP | canAddrIsDest
}

// RxID returns the ISO-TP receive id the controller answers to.
func RxID() uint32 {
	return updateNodeID | canAddrIsISOTP
}

// Transport delivers a firmware image to a microcontroller component.
// The wire protocol lives with the caller; the executor only resolves
// the component to its bus and address.
type Transport interface {
	SendFirmware(ctx context.Context, c *component.CAN, sl slot.Slot, src io.Reader, size uint64) error
}

// sendFirmware measures the image, enforces the controller's size
// limit and hands the stream to the transport.
func sendFirmware(ctx context.Context, t Transport, c *component.CAN, sl slot.Slot, src io.ReadSeeker) error {
	if t == nil {
		return fmt.Errorf("no transport configured for microcontroller %#x on %s", c.Address, c.Bus)
	}
	size, err := sourceLength(src)
	if err != nil {
		return err
	}
	if size == 0 {
		logger.Noticef("firmware for node %#x is empty, skipping send", c.Address)
		return nil
	}
	if size > maxMCUFirmwareLen {
		return &CapacityError{
			Target:   fmt.Sprintf("microcontroller %#x", c.Address),
			Capacity: maxMCUFirmwareLen,
			Size:     size,
		}
	}
	return t.SendFirmware(ctx, c, sl, src, size)
}
