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

// Package bootchain drives the boot firmware's A/B slot selection
// through its UEFI variables. All variables carry a fixed 8-byte
// payload, a 4-byte little-endian attribute prefix followed by 4 data
// bytes with the value of interest at byte 4.
package bootchain

import (
	"fmt"
	"os"

	"github.com/embedfleet/updated/efivar"
	"github.com/embedfleet/updated/slot"
)

const vendorGUID = "781e084c-a330-417c-b678-38e696380cb9"

const (
	currentVarName     = "BootChainFwCurrent-" + vendorGUID
	nextVarName        = "BootChainFwNext-" + vendorGUID
	fwStatusVarName    = "BootChainFwStatus-" + vendorGUID
	statusSlotAVarName = "RootfsStatusSlotA-" + vendorGUID
	statusSlotBVarName = "RootfsStatusSlotB-" + vendorGUID
	retryCountAVarName = "RootfsRetryCountA-" + vendorGUID
	retryCountBVarName = "RootfsRetryCountB-" + vendorGUID
	retryCountMaxName  = "RootfsRetryCountMax-" + vendorGUID
)

// payload size of all bootchain variables
const varSize = 8

// dataByte is the index of the value byte within the payload, right
// after the 4-byte attribute prefix.
const dataByte = 4

// template payload for variables created from scratch, attributes
// NV+BS+RT and zeroed data
var newVarTemplate = [varSize]byte{0x07, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

const (
	slotByteA = 0x00
	slotByteB = 0x01
)

// RootfsStatus is the boot firmware's health record of one slot's
// root filesystem.
type RootfsStatus byte

const (
	StatusNormal          RootfsStatus = 0x00
	StatusUpdateInProcess RootfsStatus = 0x01
	StatusUpdateDone      RootfsStatus = 0x02
	StatusUnbootable      RootfsStatus = 0x03
)

func (st RootfsStatus) String() string {
	switch st {
	case StatusNormal:
		return "normal"
	case StatusUpdateInProcess:
		return "update-in-process"
	case StatusUpdateDone:
		return "update-done"
	case StatusUnbootable:
		return "unbootable"
	}
	return fmt.Sprintf("unknown (%#04x)", byte(st))
}

// ParseRootfsStatus converts the textual status spelling back to its
// value.
func ParseRootfsStatus(s string) (RootfsStatus, error) {
	for _, st := range []RootfsStatus{StatusNormal, StatusUpdateInProcess, StatusUpdateDone, StatusUnbootable} {
		if s == st.String() {
			return st, nil
		}
	}
	return 0, fmt.Errorf("cannot parse %q as a rootfs status", s)
}

// InvalidDataError means a bootchain variable held a value outside
// its valid set.
type InvalidDataError struct {
	Var   string
	Value byte
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("EFI variable %q holds invalid value %#04x", e.Var, e.Value)
}

// Controller manipulates the bootchain variables of one efivarfs.
type Controller struct {
	current  *efivar.Var
	next     *efivar.Var
	fwStatus *efivar.Var

	status     map[slot.Slot]*efivar.Var
	retryCount map[slot.Slot]*efivar.Var
	retryMax   *efivar.Var
}

// NewController returns a Controller over the system efivarfs.
func NewController() (*Controller, error) {
	db := efivar.NewDb()
	c := &Controller{
		status:     make(map[slot.Slot]*efivar.Var, 2),
		retryCount: make(map[slot.Slot]*efivar.Var, 2),
	}
	for _, v := range []struct {
		name string
		dst  **efivar.Var
	}{
		{currentVarName, &c.current},
		{nextVarName, &c.next},
		{fwStatusVarName, &c.fwStatus},
		{retryCountMaxName, &c.retryMax},
	} {
		ev, err := db.Var(v.name)
		if err != nil {
			return nil, err
		}
		*v.dst = ev
	}
	for _, v := range []struct {
		name string
		sl   slot.Slot
		dst  map[slot.Slot]*efivar.Var
	}{
		{statusSlotAVarName, slot.A, c.status},
		{statusSlotBVarName, slot.B, c.status},
		{retryCountAVarName, slot.A, c.retryCount},
		{retryCountBVarName, slot.B, c.retryCount},
	} {
		ev, err := db.Var(v.name)
		if err != nil {
			return nil, err
		}
		v.dst[v.sl] = ev
	}
	return c, nil
}

func slotFromByte(v *efivar.Var, b byte) (slot.Slot, error) {
	switch b {
	case slotByteA:
		return slot.A, nil
	case slotByteB:
		return slot.B, nil
	}
	return 0, &InvalidDataError{Var: v.Path(), Value: b}
}

func slotToByte(sl slot.Slot) byte {
	if sl == slot.B {
		return slotByteB
	}
	return slotByteA
}

// readDataByte reads the variable and returns its value byte.
func readDataByte(v *efivar.Var) (byte, error) {
	data, err := v.ReadSized(varSize)
	if err != nil {
		return 0, err
	}
	return data[dataByte], nil
}

// writeDataByte sets the variable's value byte, preserving the rest of
// an existing payload. A missing variable is created from the
// template.
func writeDataByte(v *efivar.Var, b byte) error {
	data, err := v.Read()
	if os.IsNotExist(err) {
		data = append([]byte(nil), newVarTemplate[:]...)
	} else if err != nil {
		return err
	} else if len(data) != varSize {
		return &efivar.SizeError{Path: v.Path(), Size: len(data), Expected: varSize}
	}
	data[dataByte] = b
	return v.Write(data)
}

// CurrentBootSlot returns the slot the firmware booted from.
func (c *Controller) CurrentBootSlot() (slot.Slot, error) {
	b, err := readDataByte(c.current)
	if err != nil {
		return 0, err
	}
	return slotFromByte(c.current, b)
}

// InactiveSlot returns the slot the firmware did not boot from.
func (c *Controller) InactiveSlot() (slot.Slot, error) {
	sl, err := c.CurrentBootSlot()
	if err != nil {
		return 0, err
	}
	return sl.Opposite(), nil
}

// NextBootSlot returns the slot the firmware will boot next. An
// absent or unreadable next variable is not an error, the firmware
// then boots the current slot again.
func (c *Controller) NextBootSlot() (slot.Slot, error) {
	b, err := readDataByte(c.next)
	if err == nil {
		if sl, serr := slotFromByte(c.next, b); serr == nil {
			return sl, nil
		}
	}
	return c.CurrentBootSlot()
}

// SetNextBootSlot tells the firmware which slot to boot next. The
// variable's existing payload is modified in place; if the variable
// does not exist it is created from the template payload.
func (c *Controller) SetNextBootSlot(sl slot.Slot) error {
	return writeDataByte(c.next, slotToByte(sl))
}

// RootfsStatus returns the recorded health of the given slot.
func (c *Controller) RootfsStatus(sl slot.Slot) (RootfsStatus, error) {
	b, err := readDataByte(c.status[sl])
	if err != nil {
		return 0, err
	}
	st := RootfsStatus(b)
	switch st {
	case StatusNormal, StatusUpdateInProcess, StatusUpdateDone, StatusUnbootable:
		return st, nil
	}
	return 0, &InvalidDataError{Var: c.status[sl].Path(), Value: b}
}

// CurrentRootfsStatus returns the recorded health of the slot the
// firmware booted from.
func (c *Controller) CurrentRootfsStatus() (RootfsStatus, error) {
	sl, err := c.CurrentBootSlot()
	if err != nil {
		return 0, err
	}
	return c.RootfsStatus(sl)
}

// SetRootfsStatus records the health of the given slot.
func (c *Controller) SetRootfsStatus(st RootfsStatus, sl slot.Slot) error {
	return writeDataByte(c.status[sl], byte(st))
}

// RetryCount returns the remaining boot attempts of the given slot.
func (c *Controller) RetryCount(sl slot.Slot) (byte, error) {
	return readDataByte(c.retryCount[sl])
}

// MaxRetryCount returns the firmware's configured maximum boot retry
// count.
func (c *Controller) MaxRetryCount() (byte, error) {
	return readDataByte(c.retryMax)
}

// SetRetryCount sets the remaining boot attempts of the given slot.
func (c *Controller) SetRetryCount(sl slot.Slot, count byte) error {
	return writeDataByte(c.retryCount[sl], count)
}

// ResetRetryCountToMax resets the slot's remaining boot attempts to
// the firmware maximum.
func (c *Controller) ResetRetryCountToMax(sl slot.Slot) error {
	max, err := c.MaxRetryCount()
	if err != nil {
		return err
	}
	return c.SetRetryCount(sl, max)
}

// MarkSlotOK records the slot as healthy: status back to normal and
// its retry budget refilled. Run after a successful boot so the
// firmware does not fall back to the other slot.
func (c *Controller) MarkSlotOK(sl slot.Slot) error {
	if err := c.SetRootfsStatus(StatusNormal, sl); err != nil {
		return err
	}
	return c.ResetRetryCountToMax(sl)
}

// MarkSlotUnbootable records the slot as unbootable and exhausts its
// retry budget so the firmware never tries it.
func (c *Controller) MarkSlotUnbootable(sl slot.Slot) error {
	if err := c.SetRootfsStatus(StatusUnbootable, sl); err != nil {
		return err
	}
	return c.SetRetryCount(sl, 0)
}

// MarkCurrentSlotOK marks the slot the firmware booted from as
// healthy.
func (c *Controller) MarkCurrentSlotOK() error {
	sl, err := c.CurrentBootSlot()
	if err != nil {
		return err
	}
	return c.MarkSlotOK(sl)
}

// FwStatus returns the firmware's bootchain update status byte. The
// variable only exists after a firmware update.
func (c *Controller) FwStatus() (byte, bool, error) {
	b, err := readDataByte(c.fwStatus)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return b, true, nil
}

// SetFwStatus sets the firmware's bootchain update status byte.
func (c *Controller) SetFwStatus(b byte) error {
	return writeDataByte(c.fwStatus, b)
}

// RemoveFwStatus deletes the firmware status variable. A present
// variable keeps some firmware revisions from switching slots, so it
// is removed before a slot switch if found.
func (c *Controller) RemoveFwStatus() error {
	if _, ok, err := c.FwStatus(); err != nil || !ok {
		return err
	}
	return c.fwStatus.Remove()
}

// SwitchSlot marks the target slot healthy, clears a lingering
// firmware status variable, and sets the target as the next boot
// slot.
func (c *Controller) SwitchSlot(sl slot.Slot) error {
	if err := c.MarkSlotOK(sl); err != nil {
		return err
	}
	if err := c.RemoveFwStatus(); err != nil {
		return err
	}
	return c.SetNextBootSlot(sl)
}
