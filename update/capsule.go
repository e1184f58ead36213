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
	"path/filepath"

	"github.com/embedfleet/updated/dirs"
	"github.com/embedfleet/updated/efivar"
	"github.com/embedfleet/updated/logger"
)

const (
	// globalVendorGUID is the UEFI specification's global variable
	// namespace.
	globalVendorGUID = "8be4df61-93ca-11d2-aa0d-00e098032b8c"

	osIndicationsVar = "OsIndications-" + globalVendorGUID

	// capsuleDeliveryBit in OsIndications asks the firmware to process
	// a capsule file from the EFI system partition on the next boot.
	capsuleDeliveryBit = 0x04

	// capsuleDir is where the firmware looks for staged capsules,
	// relative to the EFI system partition root.
	capsuleDir = "EFI/UpdateCapsule"

	// espPartitionLabel is the GPT label of the EFI system partition.
	espPartitionLabel = "esp"
)

// osIndicationsArmed is the full OsIndications payload requesting
// capsule delivery: the standard attribute header followed by the
// delivery bit in the little-endian value.
var osIndicationsArmed = []byte{0x07, 0x00, 0x00, 0x00, capsuleDeliveryBit, 0x00, 0x00, 0x00}

// espDevicePath locates the EFI system partition's block device.
func espDevicePath() (string, error) {
	link := filepath.Join(dirs.DiskByPartlabelDir, espPartitionLabel)
	path, err := filepath.EvalSymlinks(link)
	if err != nil {
		return "", fmt.Errorf("cannot locate EFI system partition: %v", err)
	}
	return path, nil
}

// stageCapsule copies the capsule payload into the firmware's pickup
// directory on the EFI system partition and arms OsIndications so the
// firmware applies it on the next boot.
func stageCapsule(src io.Reader, name string) error {
	device, err := espDevicePath()
	if err != nil {
		return err
	}
	mnt, err := NewTemporaryMount(device)
	if err != nil {
		return err
	}
	defer func() {
		if err := mnt.Unmount(); err != nil {
			logger.Noticef("%v", err)
		}
	}()

	f, err := mnt.CreateFile(filepath.Join(capsuleDir, name))
	if err != nil {
		return fmt.Errorf("cannot create capsule file: %v", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		return fmt.Errorf("cannot write capsule file: %v", err)
	}
	if err := f.Sync(); err != nil {
		return err
	}
	logger.Noticef("staged firmware capsule %q", name)

	return armCapsule()
}

func osIndications() (*efivar.Var, error) {
	return efivar.NewDb().Var(osIndicationsVar)
}

// armCapsule sets the capsule delivery bit in OsIndications.
func armCapsule() error {
	v, err := osIndications()
	if err != nil {
		return err
	}
	data, err := v.Read()
	if os.IsNotExist(err) {
		data = append([]byte(nil), osIndicationsArmed...)
	} else if err != nil {
		return err
	}
	if len(data) != len(osIndicationsArmed) {
		return &efivar.SizeError{Path: v.Path(), Size: len(data), Expected: len(osIndicationsArmed)}
	}
	data[4] |= capsuleDeliveryBit
	if err := v.Write(data); err != nil {
		return fmt.Errorf("cannot arm capsule update: %v", err)
	}
	return nil
}

// CapsuleArmed reports whether OsIndications currently requests a
// capsule update, in which case the firmware owns the next slot
// switch.
func CapsuleArmed() (bool, error) {
	v, err := osIndications()
	if err != nil {
		return false, err
	}
	data, err := v.ReadSized(len(osIndicationsArmed))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return data[4]&capsuleDeliveryBit != 0, nil
}
