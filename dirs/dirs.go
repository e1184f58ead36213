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

package dirs

import (
	"path/filepath"
)

// the various file paths
var (
	GlobalRootDir string

	// EfiVarsDir is the efivarfs mount point holding the boot
	// firmware variables.
	EfiVarsDir string

	// VersionMapFile records which component version is installed in
	// which slot. It is rewritten after every successful component
	// write, never before.
	VersionMapFile string

	// UpdatedStateDir holds staged update payloads and scratch state.
	UpdatedStateDir string

	// UpdatedConfFile is the updated daemon configuration.
	UpdatedConfFile string

	// DevDir is where block device nodes live.
	DevDir string

	// DiskByPartlabelDir is used to locate partitions by GPT label when
	// unmounting a live single-redundancy partition.
	DiskByPartlabelDir string
)

func init() {
	// init the global directories at startup
	SetRootDir("/")
}

// SetRootDir allows settings a new global root directory, this is useful
// for e.g. chroot operations and running tests against a fake filesystem.
func SetRootDir(rootdir string) {
	if rootdir == "" {
		panic("SetRootDir called with empty root dir")
	}
	GlobalRootDir = rootdir

	EfiVarsDir = filepath.Join(rootdir, "sys/firmware/efi/efivars")
	VersionMapFile = filepath.Join(rootdir, "usr/persistent/versions.map")
	UpdatedStateDir = filepath.Join(rootdir, "var/lib/updated")
	UpdatedConfFile = filepath.Join(rootdir, "etc/updated.conf")
	DevDir = filepath.Join(rootdir, "dev")
	DiskByPartlabelDir = filepath.Join(rootdir, "dev/disk/by-partlabel")
}
