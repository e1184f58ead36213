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

// CapacityError is returned when a payload does not fit its target.
// Writes never truncate; a payload larger than the target fails before
// the first byte is written.
type CapacityError struct {
	Target   string
	Capacity uint64
	Size     uint64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("cannot write %d bytes to %s, capacity is %d", e.Size, e.Target, e.Capacity)
}

// sourceLength measures the stream by seeking to its end, then rewinds
// it to the start.
func sourceLength(src io.ReadSeeker) (uint64, error) {
	n, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// confirmReadWorksAtBounds reads one byte at the first and last
// position of the stream's declared range and rewinds. Source files
// live on removable or flaky media; failing here is much cheaper than
// failing halfway through a partition write.
func confirmReadWorksAtBounds(src io.ReadSeeker, length uint64) error {
	if length == 0 {
		return nil
	}
	var b [1]byte
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(src, b[:]); err != nil {
		return fmt.Errorf("cannot read at start of source: %v", err)
	}
	if _, err := src.Seek(int64(length-1), io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(src, b[:]); err != nil {
		return fmt.Errorf("cannot read at end of source: %v", err)
	}
	_, err := src.Seek(0, io.SeekStart)
	return err
}

// writeGPT streams src into the partition the component resolves to in
// the given slot and syncs the device before returning.
func writeGPT(g *component.GPT, sl slot.Slot, src io.ReadSeeker) error {
	srcLen, err := sourceLength(src)
	if err != nil {
		return err
	}
	if srcLen == 0 {
		logger.Noticef("source for partition %q is empty, skipping write", g.Label)
		return nil
	}

	part, err := g.Partition(sl)
	if err != nil {
		return err
	}

	if g.Redundancy == component.Single {
		// a single partition may be mounted by the running system
		if err := unmountPartitionByLabel(part.Name); err != nil {
			logger.Noticef("cannot unmount partition %q: %v", part.Name, err)
		}
	}

	if err := confirmReadWorksAtBounds(src, srcLen); err != nil {
		return err
	}
	if srcLen > part.Size {
		return &CapacityError{
			Target:   fmt.Sprintf("partition %q", part.Name),
			Capacity: part.Size,
			Size:     srcLen,
		}
	}

	dev, err := os.OpenFile(g.Device.Path(), os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer dev.Close()

	if _, err := dev.Seek(int64(part.StartOffset), io.SeekStart); err != nil {
		return err
	}
	w := newProgressWriter(dev, part.Name, srcLen)
	if _, err := io.Copy(w, io.LimitReader(src, int64(srcLen))); err != nil {
		return fmt.Errorf("cannot write partition %q: %v", part.Name, err)
	}
	return dev.Sync()
}
