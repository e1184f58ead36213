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
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
	. "gopkg.in/check.v1"

	"github.com/embedfleet/updated/dirs"
	"github.com/embedfleet/updated/update"
)

type mountSuite struct{}

var _ = Suite(&mountSuite{})

func (s *mountSuite) SetUpTest(c *C) {
	dirs.SetRootDir(c.MkDir())
}

func (s *mountSuite) TearDownTest(c *C) {
	dirs.SetRootDir("/")
}

// linkPartition fabricates a device node and its by-partlabel symlink
// under the test root.
func (s *mountSuite) linkPartition(c *C, label, node string) string {
	c.Assert(os.MkdirAll(dirs.DevDir, 0755), IsNil)
	c.Assert(os.MkdirAll(dirs.DiskByPartlabelDir, 0755), IsNil)
	path := filepath.Join(dirs.DevDir, node)
	c.Assert(os.WriteFile(path, nil, 0644), IsNil)
	c.Assert(os.Symlink(path, filepath.Join(dirs.DiskByPartlabelDir, label)), IsNil)
	return path
}

func (s *mountSuite) TestUnmountUnknownLabelIsFine(c *C) {
	restore := update.MockUnixUnmount(func(target string, flags int) error {
		c.Fatalf("unexpected unmount of %s", target)
		return nil
	})
	defer restore()

	c.Check(update.UnmountPartitionByLabel("nosuchlabel"), IsNil)
}

func (s *mountSuite) TestUnmountResolvesLabel(c *C) {
	node := s.linkPartition(c, "A_rootfs", "sda3")

	var calls []string
	restore := update.MockUnixUnmount(func(target string, flags int) error {
		calls = append(calls, target)
		c.Check(flags, Equals, unix.MNT_DETACH)
		return nil
	})
	defer restore()

	c.Assert(update.UnmountPartitionByLabel("A_rootfs"), IsNil)
	c.Check(calls, DeepEquals, []string{node})
}

func (s *mountSuite) TestUnmountNotMountedIsFine(c *C) {
	s.linkPartition(c, "A_rootfs", "sda3")

	restore := update.MockUnixUnmount(func(target string, flags int) error {
		return unix.EINVAL
	})
	defer restore()

	c.Check(update.UnmountPartitionByLabel("A_rootfs"), IsNil)
}

func (s *mountSuite) TestUnmountRetriesBusyDevice(c *C) {
	s.linkPartition(c, "A_rootfs", "sda3")

	calls := 0
	restore := update.MockUnixUnmount(func(target string, flags int) error {
		calls++
		if calls < 3 {
			return unix.EBUSY
		}
		return nil
	})
	defer restore()

	c.Assert(update.UnmountPartitionByLabel("A_rootfs"), IsNil)
	c.Check(calls, Equals, 3)
}

func (s *mountSuite) TestUnmountGivesUpEventually(c *C) {
	s.linkPartition(c, "A_rootfs", "sda3")

	calls := 0
	restore := update.MockUnixUnmount(func(target string, flags int) error {
		calls++
		return unix.EBUSY
	})
	defer restore()

	err := update.UnmountPartitionByLabel("A_rootfs")
	c.Assert(err, ErrorMatches, "cannot unmount .*: device or resource busy")
	c.Check(calls, Equals, 4)
}

func (s *mountSuite) TestUnmountRejectsEscapingSymlink(c *C) {
	c.Assert(os.MkdirAll(dirs.DiskByPartlabelDir, 0755), IsNil)
	outside := filepath.Join(c.MkDir(), "not-a-device")
	c.Assert(os.WriteFile(outside, nil, 0644), IsNil)
	c.Assert(os.Symlink(outside, filepath.Join(dirs.DiskByPartlabelDir, "evil")), IsNil)

	err := update.UnmountPartitionByLabel("evil")
	c.Assert(err, ErrorMatches, `partition label "evil" resolves outside .*`)
}

func (s *mountSuite) TestTemporaryMount(c *C) {
	var mounts, unmounts []string
	restoreMount := update.MockUnixMount(func(source, target, fstype string, flags uintptr, data string) error {
		mounts = append(mounts, source+":"+fstype)
		c.Check(flags, Equals, uintptr(unix.MS_NOEXEC|unix.MS_NOSUID|unix.MS_NODEV))
		return nil
	})
	defer restoreMount()
	restoreUnmount := update.MockUnixUnmount(func(target string, flags int) error {
		unmounts = append(unmounts, target)
		return nil
	})
	defer restoreUnmount()

	mnt, err := update.NewTemporaryMount("/dev/sda1")
	c.Assert(err, IsNil)
	c.Check(mounts, DeepEquals, []string{"/dev/sda1:vfat"})

	f, err := mnt.CreateFile("EFI/UpdateCapsule/fw.cap")
	c.Assert(err, IsNil)
	_, err = f.Write([]byte("capsule"))
	c.Assert(err, IsNil)
	c.Assert(f.Close(), IsNil)

	data, err := os.ReadFile(filepath.Join(mnt.Dir(), "EFI/UpdateCapsule/fw.cap"))
	c.Assert(err, IsNil)
	c.Check(string(data), Equals, "capsule")

	dir := mnt.Dir()
	c.Assert(mnt.Unmount(), IsNil)
	c.Check(unmounts, DeepEquals, []string{dir})
	_, err = os.Stat(dir)
	c.Check(os.IsNotExist(err), Equals, true)
}
