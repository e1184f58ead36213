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

	. "gopkg.in/check.v1"

	"github.com/embedfleet/updated/dirs"
	"github.com/embedfleet/updated/efivar"
	"github.com/embedfleet/updated/testutil"
	"github.com/embedfleet/updated/update"
)

type capsuleSuite struct {
	restoreIoctls func()
}

var _ = Suite(&capsuleSuite{})

func (s *capsuleSuite) SetUpTest(c *C) {
	dirs.SetRootDir(c.MkDir())
	c.Assert(os.MkdirAll(dirs.EfiVarsDir, 0755), IsNil)
	s.restoreIoctls = efivar.MockPlainFileAttrs()
}

func (s *capsuleSuite) TearDownTest(c *C) {
	s.restoreIoctls()
	dirs.SetRootDir("/")
}

func (s *capsuleSuite) varPath() string {
	return filepath.Join(dirs.EfiVarsDir, update.OsIndicationsVar)
}

func (s *capsuleSuite) TestArmedAbsentVar(c *C) {
	armed, err := update.CapsuleArmed()
	c.Assert(err, IsNil)
	c.Check(armed, Equals, false)
}

func (s *capsuleSuite) TestArmAndCheck(c *C) {
	c.Assert(update.ArmCapsule(), IsNil)

	armed, err := update.CapsuleArmed()
	c.Assert(err, IsNil)
	c.Check(armed, Equals, true)

	data, err := os.ReadFile(s.varPath())
	c.Assert(err, IsNil)
	c.Check(data, DeepEquals, []byte{0x07, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00})
}

func (s *capsuleSuite) TestArmPreservesOtherIndications(c *C) {
	existing := []byte{0x07, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}
	c.Assert(os.WriteFile(s.varPath(), existing, 0644), IsNil)

	c.Assert(update.ArmCapsule(), IsNil)
	c.Check(s.varPath(), testutil.FileEquals, []byte{0x07, 0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00})
}

func (s *capsuleSuite) TestArmedNotSet(c *C) {
	existing := []byte{0x07, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}
	c.Assert(os.WriteFile(s.varPath(), existing, 0644), IsNil)

	armed, err := update.CapsuleArmed()
	c.Assert(err, IsNil)
	c.Check(armed, Equals, false)
}

func (s *capsuleSuite) TestArmedWrongSize(c *C) {
	c.Assert(os.WriteFile(s.varPath(), []byte{0x07, 0x00}, 0644), IsNil)

	_, err := update.CapsuleArmed()
	c.Assert(err, ErrorMatches, `EFI variable ".*" has size 2, expected 8`)
}
