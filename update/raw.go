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
	"fmt"
	"io"
	"os"

	"github.com/embedfleet/updated/component"
	"github.com/embedfleet/updated/logger"
	"github.com/embedfleet/updated/slot"
)

// rawOffset returns where the payload starts on the device. A
// redundant raw component keeps the slot B copy directly after the
// slot A copy, so the slot B offset is shifted by one region size.
func rawOffset(r *component.Raw, sl slot.Slot) uint64 {
	if sl == slot.B && r.Redundancy == component.Redundant {
		return r.Offset + r.Size
	}
	return r.Offset
}

// writeRaw streams src to the raw byte range the component resolves to
// in the given slot.
func writeRaw(r *component.Raw, sl slot.Slot, src io.ReadSeeker) error {
	srcLen, err := sourceLength(src)
	if err != nil {
		return err
	}
	if srcLen == 0 {
		logger.Noticef("source for raw region on %s is empty, skipping write", r.Device)
		return nil
	}
	if srcLen > r.Size {
		return &CapacityError{
			Target:   fmt.Sprintf("raw region on %s", r.Device),
			Capacity: r.Size,
			Size:     srcLen,
		}
	}
	if err := confirmReadWorksAtBounds(src, srcLen); err != nil {
		return err
	}

	offset := rawOffset(r, sl)

	dev, err := os.OpenFile(r.Device.Path(), os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer dev.Close()

	devLen, err := dev.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if uint64(devLen) < srcLen+offset {
		return &CapacityError{
			Target:   fmt.Sprintf("device %s at offset %d", r.Device, offset),
			Capacity: uint64(devLen),
			Size:     srcLen + offset,
		}
	}

	if _, err := dev.Seek(int64(offset), io.SeekStart); err != nil {
		return err
	}
	target := fmt.Sprintf("%s@%d", r.Device, offset)
	w := newProgressWriter(dev, target, srcLen)
	if _, err := io.Copy(w, io.LimitReader(src, int64(srcLen))); err != nil {
		return fmt.Errorf("cannot write raw region on %s: %v", r.Device, err)
	}
	return dev.Sync()
}
