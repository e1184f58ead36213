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

package update_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/embedfleet/updated/component"
	"github.com/embedfleet/updated/slot"
	"github.com/embedfleet/updated/update"
)

type rawSuite struct{}

var _ = Suite(&rawSuite{})

// makeRawDevice fabricates a device image of the given size and points
// the QSPI device class at it.
func makeRawDevice(c *C, size int) (path string, restore func()) {
	path = filepath.Join(c.MkDir(), "mtdblock.img")
	c.Assert(os.WriteFile(path, make([]byte, size), 0644), IsNil)
	restore = component.MockDevicePath(component.DeviceQSPI, path)
	return path, restore
}

func (s *rawSuite) TestOffsets(c *C) {
	redundant := &component.Raw{Device: component.DeviceQSPI, Offset: 1024, Size: 256, Redundancy: component.Redundant}
	c.Check(update.RawOffset(redundant, slot.A), Equals, uint64(1024))
	c.Check(update.RawOffset(redundant, slot.B), Equals, uint64(1280))

	single := &component.Raw{Device: component.DeviceQSPI, Offset: 1024, Size: 256, Redundancy: component.Single}
	c.Check(update.RawOffset(single, slot.A), Equals, uint64(1024))
	c.Check(update.RawOffset(single, slot.B), Equals, uint64(1024))
}

func (s *rawSuite) TestWriteRedundantSlotB(c *C) {
	img, restore := makeRawDevice(c, 4096)
	defer restore()

	r := &component.Raw{Device: component.DeviceQSPI, Offset: 1024, Size: 256, Redundancy: component.Redundant}
	payload := pattern(200, 5)
	c.Assert(update.WriteRaw(r, slot.B, bytes.NewReader(payload)), IsNil)

	data, err := os.ReadFile(img)
	c.Assert(err, IsNil)
	c.Check(data[1280:1480], DeepEquals, payload)
	// the slot A region is untouched
	c.Check(data[1024:1280], DeepEquals, make([]byte, 256))
}

func (s *rawSuite) TestWriteRefusesOversizedPayload(c *C) {
	_, restore := makeRawDevice(c, 4096)
	defer restore()

	r := &component.Raw{Device: component.DeviceQSPI, Offset: 1024, Size: 256, Redundancy: component.Single}
	err := update.WriteRaw(r, slot.A, bytes.NewReader(pattern(257, 9)))
	c.Assert(err, ErrorMatches, `cannot write 257 bytes to raw region on qspi, capacity is 256`)
}

func (s *rawSuite) TestWriteRefusesRegionPastDeviceEnd(c *C) {
	_, restore := makeRawDevice(c, 1100)
	defer restore()

	r := &component.Raw{Device: component.DeviceQSPI, Offset: 1024, Size: 256, Redundancy: component.Single}
	err := update.WriteRaw(r, slot.A, bytes.NewReader(pattern(200, 9)))
	c.Assert(err, ErrorMatches, `cannot write 1224 bytes to device qspi at offset 1024, capacity is 1100`)
}

func (s *rawSuite) TestWriteEmptySourceIsSkipped(c *C) {
	img, restore := makeRawDevice(c, 4096)
	defer restore()

	r := &component.Raw{Device: component.DeviceQSPI, Offset: 0, Size: 256, Redundancy: component.Single}
	c.Assert(update.WriteRaw(r, slot.A, bytes.NewReader(nil)), IsNil)
	data, err := os.ReadFile(img)
	c.Assert(err, IsNil)
	c.Check(data, DeepEquals, make([]byte, 4096))
}
