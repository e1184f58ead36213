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

package efivar

import (
	"os"

	"golang.org/x/sys/unix"
)

// ImmutableFlag is the inode flag efivarfs sets on variable files.
// x/sys/unix does not export FS_IMMUTABLE_FL; STATX_ATTR_IMMUTABLE has
// the same value (0x10) by definition.
const ImmutableFlag = unix.STATX_ATTR_IMMUTABLE

// the attribute ioctls are indirected so that tests can run on
// filesystems that do not implement them
var (
	getFileAttrs = func(f *os.File) (int, error) {
		return unix.IoctlGetInt(int(f.Fd()), unix.FS_IOC_GETFLAGS)
	}
	setFileAttrs = func(f *os.File, attrs int) error {
		return unix.IoctlSetPointerInt(int(f.Fd()), unix.FS_IOC_SETFLAGS, attrs)
	}
)

// MockFileAttrs replaces the inode attribute ioctls for testing
// purposes.
func MockFileAttrs(get func(f *os.File) (int, error), set func(f *os.File, attrs int) error) (restore func()) {
	oldGet, oldSet := getFileAttrs, setFileAttrs
	getFileAttrs = get
	setFileAttrs = set
	return func() {
		getFileAttrs, setFileAttrs = oldGet, oldSet
	}
}

// MockPlainFileAttrs replaces the inode attribute ioctls with ones
// backed by plain memory, for tests on filesystems without attribute
// support.
func MockPlainFileAttrs() (restore func()) {
	attrs := make(map[string]int)
	return MockFileAttrs(
		func(f *os.File) (int, error) { return attrs[f.Name()], nil },
		func(f *os.File, a int) error { attrs[f.Name()] = a; return nil },
	)
}
