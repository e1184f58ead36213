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
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"gopkg.in/retry.v1"

	"github.com/embedfleet/updated/dirs"
	"github.com/embedfleet/updated/logger"
)

var unmountRetryStrategy = retry.LimitCount(4, retry.Exponential{
	Initial: 100 * time.Millisecond,
	Factor:  2,
})

var unixUnmount = unix.Unmount

// unmountPartitionByLabel lazily unmounts the block device behind
// /dev/disk/by-partlabel/<label>, if it exists. The unmount is lazy so
// a busy filesystem detaches from the tree now and goes away once the
// last user is done.
func unmountPartitionByLabel(label string) error {
	link := filepath.Join(dirs.DiskByPartlabelDir, label)
	path, err := filepath.EvalSymlinks(link)
	if os.IsNotExist(err) {
		// nothing with that label, nothing to unmount
		return nil
	}
	if err != nil {
		return err
	}
	if !strings.HasPrefix(path, dirs.DevDir+"/") {
		return fmt.Errorf("partition label %q resolves outside %s: %s", label, dirs.DevDir, path)
	}

	var lastErr error
	for a := retry.Start(unmountRetryStrategy, nil); a.Next(); {
		lastErr = unixUnmount(path, unix.MNT_DETACH)
		if lastErr == nil || lastErr == unix.EINVAL || lastErr == unix.ENOENT {
			// EINVAL means the device was not mounted
			return nil
		}
		logger.Debugf("retrying unmount of %s: %v", path, lastErr)
	}
	return fmt.Errorf("cannot unmount %s: %v", path, lastErr)
}

var unixMount = unix.Mount

// TemporaryMount mounts a vfat filesystem, such as the EFI system
// partition, under a scratch directory for the lifetime of one
// operation.
type TemporaryMount struct {
	dir string
}

// NewTemporaryMount mounts the given device on a fresh temporary
// directory, read-write but with exec, suid and device nodes disabled.
func NewTemporaryMount(device string) (*TemporaryMount, error) {
	dir, err := os.MkdirTemp("", "updated-mount-")
	if err != nil {
		return nil, err
	}
	flags := uintptr(unix.MS_NOEXEC | unix.MS_NOSUID | unix.MS_NODEV)
	if err := unixMount(device, dir, "vfat", flags, ""); err != nil {
		os.Remove(dir)
		return nil, fmt.Errorf("cannot mount %s: %v", device, err)
	}
	return &TemporaryMount{dir: dir}, nil
}

// Dir returns the mount point.
func (m *TemporaryMount) Dir() string { return m.dir }

// CreateFile creates the named file inside the mount, making parent
// directories as needed.
func (m *TemporaryMount) CreateFile(name string) (*os.File, error) {
	path := filepath.Join(m.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

// Unmount lazily detaches the filesystem and removes the scratch
// directory.
func (m *TemporaryMount) Unmount() error {
	if err := unixUnmount(m.dir, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("cannot unmount %s: %v", m.dir, err)
	}
	return os.Remove(m.dir)
}
