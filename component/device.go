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

package component

import (
	"encoding/json"
	"fmt"
	"os"
)

// Device names a class of physical storage. Manifests historically used
// "emmc" and "nvme" for what is the same system block device on
// different board revisions, so all three spellings decode to the ssd
// class.
type Device string

const (
	DeviceSSD  Device = "ssd"
	DeviceQSPI Device = "qspi"
)

// devicePaths are fixed aliases per device class; they are not
// discovered at runtime.
var devicePaths = map[Device]string{
	DeviceSSD:  "/dev/nvme0n1",
	DeviceQSPI: "/dev/mtdblock0",
}

// Path returns the block device node for the device class.
func (d Device) Path() string {
	path, ok := devicePaths[d]
	if !ok {
		panic(fmt.Sprintf("internal error: no device path for device class %q", string(d)))
	}
	return path
}

func (d Device) String() string {
	return string(d)
}

// MockDevicePath replaces the block device node of the given device
// class, for testing.
func MockDevicePath(d Device, path string) (restore func()) {
	old, ok := devicePaths[d]
	if !ok {
		panic(fmt.Sprintf("internal error: no device path for device class %q", string(d)))
	}
	devicePaths[d] = path
	return func() {
		devicePaths[d] = old
	}
}

func (d *Device) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "emmc", "nvme", "ssd":
		*d = DeviceSSD
	case "qspi":
		*d = DeviceQSPI
	default:
		return fmt.Errorf("cannot parse %q as a device, expected one of \"emmc\", \"nvme\", \"ssd\", \"qspi\"", v)
	}
	return nil
}

// DeviceNotFoundError is returned when a component's device class does
// not map to an existing block device. This is always a hard error: a
// missing device means the component cannot be addressed at all.
type DeviceNotFoundError struct {
	Device Device
	Path   string
	Err    error
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("cannot find block device %q for device class %q: %v", e.Path, e.Device, e.Err)
}

func (e *DeviceNotFoundError) Unwrap() error { return e.Err }

// checkDeviceNode stats the device node, translating absence into a
// DeviceNotFoundError.
func checkDeviceNode(d Device) (string, error) {
	path := d.Path()
	if _, err := os.Stat(path); err != nil {
		return "", &DeviceNotFoundError{Device: d, Path: path, Err: err}
	}
	return path, nil
}
