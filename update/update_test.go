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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/embedfleet/updated/bootchain"
	"github.com/embedfleet/updated/component"
	"github.com/embedfleet/updated/dirs"
	"github.com/embedfleet/updated/efivar"
	"github.com/embedfleet/updated/manifest"
	"github.com/embedfleet/updated/slot"
	"github.com/embedfleet/updated/testutil"
	"github.com/embedfleet/updated/update"
	"github.com/embedfleet/updated/versions"
)

// fakeBoot records the boot chain operations the executor performs.
type fakeBoot struct {
	statuses    []string
	retryResets []slot.Slot
	nextSlots   []slot.Slot
}

func (b *fakeBoot) SetRootfsStatus(st bootchain.RootfsStatus, sl slot.Slot) error {
	b.statuses = append(b.statuses, fmt.Sprintf("%s:%s", sl, st))
	return nil
}

func (b *fakeBoot) ResetRetryCountToMax(sl slot.Slot) error {
	b.retryResets = append(b.retryResets, sl)
	return nil
}

func (b *fakeBoot) SetNextBootSlot(sl slot.Slot) error {
	b.nextSlots = append(b.nextSlots, sl)
	return nil
}

type executorSuite struct {
	img        string
	restoreDev func()

	restoreIoctls func()

	boot     *fakeBoot
	vmap     *versions.Map
	vmapPath string
	payloads string
}

var _ = Suite(&executorSuite{})

func (s *executorSuite) SetUpTest(c *C) {
	dirs.SetRootDir(c.MkDir())
	c.Assert(os.MkdirAll(dirs.EfiVarsDir, 0755), IsNil)
	s.restoreIoctls = efivar.MockPlainFileAttrs()

	s.img, s.restoreDev = makeDiskImage(c)
	s.boot = &fakeBoot{}
	s.vmap = versions.NewMap()
	s.vmapPath = filepath.Join(c.MkDir(), "versions.map")
	s.payloads = c.MkDir()
}

func (s *executorSuite) TearDownTest(c *C) {
	s.restoreDev()
	s.restoreIoctls()
	dirs.SetRootDir("/")
}

// addPayload writes a payload file and returns its source description.
func (s *executorSuite) addPayload(c *C, name string, data []byte) manifest.Source {
	path := filepath.Join(s.payloads, name+".img")
	c.Assert(os.WriteFile(path, data, 0644), IsNil)
	digest := sha256.Sum256(data)
	loc, err := manifest.ParseLocation(path)
	c.Assert(err, IsNil)
	return manifest.Source{
		Hash:     hex.EncodeToString(digest[:]),
		MimeType: manifest.MimeOctetStream,
		Name:     name,
		Size:     uint64(len(data)),
		URL:      *loc,
	}
}

func (s *executorSuite) makeClaim(c *C, appPayload []byte) *manifest.Claim {
	return &manifest.Claim{
		Version: "2.4.0",
		Manifest: &manifest.Manifest{
			Magic: "some-magic",
			Kind:  manifest.UpdateKindNormal,
			Components: []manifest.Component{{
				Name:           "app",
				VersionAssert:  "1.0.0",
				VersionUpgrade: "1.1.0",
				Size:           uint64(len(appPayload)),
				Phase:          manifest.PhaseNormal,
			}},
		},
		Sources: map[string]manifest.Source{
			"app": s.addPayload(c, "app", appPayload),
		},
		SystemComponents: component.Components{
			"app": component.NewGPT(component.GPT{Device: component.DeviceSSD, Label: "app", Redundancy: component.Redundant}),
			"cfg": component.NewGPT(component.GPT{Device: component.DeviceSSD, Label: "cfg", Redundancy: component.Redundant}),
		},
	}
}

func (s *executorSuite) newExecutor(claim *manifest.Claim, recovery bool) *update.Executor {
	return update.New(claim, s.vmap, s.boot, &update.Options{
		ActiveSlot:     slot.A,
		Recovery:       recovery,
		VersionMapPath: s.vmapPath,
	})
}

func (s *executorSuite) TestRunUpdatesAndMirrors(c *C) {
	// both cfg copies hold data only in slot A, as on a device that
	// was updated in place
	cfgData := pattern(300, 21)
	writeImage(c, s.img, cfgStartA, cfgData)
	s.vmap.SetComponent(slot.A, &manifest.Component{Name: "cfg", VersionUpgrade: "0.9.0"},
		component.NewGPT(component.GPT{Device: component.DeviceSSD, Label: "cfg", Redundancy: component.Redundant}))

	appPayload := pattern(700, 23)
	claim := s.makeClaim(c, appPayload)
	ex := s.newExecutor(claim, false)
	c.Check(ex.TargetSlot(), Equals, slot.B)

	c.Assert(ex.Run(), IsNil)

	// the app payload landed in the slot B partition
	c.Check(readImage(c, s.img, appStartB, len(appPayload)), DeepEquals, appPayload)
	// cfg was mirrored from slot A to slot B
	c.Check(readImage(c, s.img, cfgStartB, len(cfgData)), DeepEquals, cfgData)

	// the target slot was marked as updating before any write
	c.Check(s.boot.statuses, DeepEquals, []string{"b:update-in-process"})

	// the version map records the update and the mirror
	v, ok := s.vmap.ComponentVersion("app", slot.B)
	c.Assert(ok, Equals, true)
	c.Check(v, Equals, "1.1.0")
	v, ok = s.vmap.ComponentVersion("cfg", slot.B)
	c.Assert(ok, Equals, true)
	c.Check(v, Equals, "0.9.0")

	// and was persisted
	c.Check(s.vmapPath, testutil.FileContains, `"1.1.0"`)
	c.Check(s.vmapPath, testutil.FileContains, `"0.9.0"`)
}

func (s *executorSuite) TestRunSkipsRecoveryPhaseComponents(c *C) {
	appPayload := pattern(700, 25)
	claim := s.makeClaim(c, appPayload)
	claim.Manifest.Components[0].Phase = manifest.PhaseRecovery

	ex := s.newExecutor(claim, false)
	c.Assert(ex.Run(), IsNil)

	// nothing was written and no version recorded
	c.Check(readImage(c, s.img, appStartB, len(appPayload)), DeepEquals, make([]byte, len(appPayload)))
	_, ok := s.vmap.ComponentVersion("app", slot.B)
	c.Check(ok, Equals, false)
}

func (s *executorSuite) TestRecoveryRunSkipsNormalPhaseAndMirror(c *C) {
	cfgData := pattern(300, 27)
	writeImage(c, s.img, cfgStartA, cfgData)

	appPayload := pattern(700, 29)
	claim := s.makeClaim(c, appPayload)
	ex := s.newExecutor(claim, true)
	c.Assert(ex.Run(), IsNil)

	// the normal phase component was skipped, and no mirroring happened
	c.Check(readImage(c, s.img, appStartB, len(appPayload)), DeepEquals, make([]byte, len(appPayload)))
	c.Check(readImage(c, s.img, cfgStartB, len(cfgData)), DeepEquals, make([]byte, len(cfgData)))
}

func (s *executorSuite) TestRunRejectsCorruptPayload(c *C) {
	appPayload := pattern(700, 31)
	claim := s.makeClaim(c, appPayload)
	// corrupt the payload on disk after the claim was built
	path := claim.Sources["app"].URL.Path
	c.Assert(os.WriteFile(path, pattern(700, 32), 0644), IsNil)

	ex := s.newExecutor(claim, false)
	err := ex.Run()
	c.Assert(err, ErrorMatches, `cannot update component "app": source for "app" has sha256 [0-9a-f]+, claim declares [0-9a-f]+`)
	// the failed component was not recorded
	_, ok := s.vmap.ComponentVersion("app", slot.B)
	c.Check(ok, Equals, false)
}

func (s *executorSuite) TestRunRejectsTruncatedPayload(c *C) {
	appPayload := pattern(700, 33)
	claim := s.makeClaim(c, appPayload)
	path := claim.Sources["app"].URL.Path
	c.Assert(os.WriteFile(path, appPayload[:500], 0644), IsNil)

	ex := s.newExecutor(claim, false)
	err := ex.Run()
	c.Assert(err, ErrorMatches, `cannot update component "app": source for "app" has 500 bytes, claim declares 700`)
}

func (s *executorSuite) TestRunRefusesOversizedComponent(c *C) {
	appPayload := pattern(partSize+1, 34)
	claim := s.makeClaim(c, appPayload)
	ex := s.newExecutor(claim, false)
	err := ex.Run()
	c.Assert(err, ErrorMatches, `cannot update component "app": cannot write .* bytes to partition "B_app", capacity is .*`)
	var capErr *update.CapacityError
	c.Check(errors.As(err, &capErr), Equals, true)
}

func (s *executorSuite) TestFinalizeNormalUpdate(c *C) {
	appPayload := pattern(700, 35)
	claim := s.makeClaim(c, appPayload)
	ex := s.newExecutor(claim, false)
	c.Assert(ex.Run(), IsNil)
	c.Assert(ex.Finalize(), IsNil)

	v, ok := s.vmap.SlotRelease(slot.B)
	c.Assert(ok, Equals, true)
	c.Check(v, Equals, "2.4.0")
	_, ok = s.vmap.SlotRelease(slot.A)
	c.Check(ok, Equals, false)

	c.Check(s.boot.statuses, DeepEquals, []string{"b:update-in-process", "b:update-done"})
	c.Check(s.boot.retryResets, DeepEquals, []slot.Slot{slot.B})
	c.Check(s.boot.nextSlots, DeepEquals, []slot.Slot{slot.B})
}

func (s *executorSuite) TestFinalizeLeavesSlotSwitchToArmedCapsule(c *C) {
	appPayload := pattern(700, 37)
	claim := s.makeClaim(c, appPayload)
	ex := s.newExecutor(claim, false)
	c.Assert(ex.Run(), IsNil)

	c.Assert(update.ArmCapsule(), IsNil)
	c.Assert(ex.Finalize(), IsNil)

	c.Check(s.boot.statuses, DeepEquals, []string{"b:update-in-process", "b:update-done"})
	c.Check(s.boot.retryResets, DeepEquals, []slot.Slot{slot.B})
	// the firmware owns the slot switch
	c.Check(s.boot.nextSlots, HasLen, 0)
}

func (s *executorSuite) TestFinalizeFullUpdate(c *C) {
	appPayload := pattern(700, 39)
	claim := s.makeClaim(c, appPayload)
	claim.Manifest.Kind = manifest.UpdateKindFull
	ex := s.newExecutor(claim, false)
	c.Assert(ex.Run(), IsNil)
	c.Assert(ex.Finalize(), IsNil)

	v, ok := s.vmap.RecoveryRelease()
	c.Assert(ok, Equals, true)
	c.Check(v, Equals, "2.4.0")
	_, ok = s.vmap.SlotRelease(slot.B)
	c.Check(ok, Equals, false)

	// a full update does not touch the boot chain beyond staging
	c.Check(s.boot.statuses, DeepEquals, []string{"b:update-in-process"})
	c.Check(s.boot.nextSlots, HasLen, 0)
}

func (s *executorSuite) TestFullUpdateDoesNotMirror(c *C) {
	cfgData := pattern(300, 41)
	writeImage(c, s.img, cfgStartA, cfgData)

	appPayload := pattern(700, 43)
	claim := s.makeClaim(c, appPayload)
	claim.Manifest.Kind = manifest.UpdateKindFull
	ex := s.newExecutor(claim, false)
	c.Assert(ex.Run(), IsNil)

	c.Check(readImage(c, s.img, cfgStartB, len(cfgData)), DeepEquals, make([]byte, len(cfgData)))
}

func (s *executorSuite) TestMirrorSkipsUpdatedComponents(c *C) {
	// the app partition is redundant and in the manifest: the mirror
	// pass must not overwrite the freshly written slot B copy
	appPayload := pattern(700, 45)
	writeImage(c, s.img, appStartA, pattern(700, 46))

	claim := s.makeClaim(c, appPayload)
	ex := s.newExecutor(claim, false)
	c.Assert(ex.Run(), IsNil)

	c.Check(readImage(c, s.img, appStartB, len(appPayload)), DeepEquals, appPayload)
}
