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
	"errors"

	. "gopkg.in/check.v1"

	"github.com/embedfleet/updated/component"
	"github.com/embedfleet/updated/manifest"
	"github.com/embedfleet/updated/slot"
	"github.com/embedfleet/updated/update"
	"github.com/embedfleet/updated/versions"
)

type validateSuite struct{}

var _ = Suite(&validateSuite{})

func validateClaim(redundancy component.Redundancy) *manifest.Claim {
	return &manifest.Claim{
		Version: "2.4.0",
		Manifest: &manifest.Manifest{
			Magic: "some-magic",
			Kind:  manifest.UpdateKindNormal,
			Components: []manifest.Component{{
				Name:           "app",
				VersionAssert:  "1.0.0",
				VersionUpgrade: "1.1.0",
				Phase:          manifest.PhaseNormal,
			}},
		},
		SystemComponents: component.Components{
			"app": component.NewGPT(component.GPT{Device: component.DeviceSSD, Label: "app", Redundancy: redundancy}),
		},
	}
}

func (s *validateSuite) TestComponentAbsentFromMapPasses(c *C) {
	claim := validateClaim(component.Redundant)
	c.Check(update.ValidateVersions(claim, versions.NewMap(), slot.A), IsNil)
}

func (s *validateSuite) TestRedundantAssertMatchesActiveSlot(c *C) {
	claim := validateClaim(component.Redundant)
	comp := claim.SystemComponents["app"]

	vmap := versions.NewMap()
	vmap.SetComponent(slot.A, &manifest.Component{Name: "app", VersionUpgrade: "1.0.0"}, comp)
	c.Check(update.ValidateVersions(claim, vmap, slot.A), IsNil)

	// the other slot's version does not count
	vmap = versions.NewMap()
	vmap.SetComponent(slot.B, &manifest.Component{Name: "app", VersionUpgrade: "1.0.0"}, comp)
	err := update.ValidateVersions(claim, vmap, slot.A)
	c.Assert(err, ErrorMatches, `component "app" is at version "", manifest expects "1.0.0"`)
	var assertErr *update.VersionAssertError
	c.Check(errors.As(err, &assertErr), Equals, true)
}

func (s *validateSuite) TestRedundantAssertMismatch(c *C) {
	claim := validateClaim(component.Redundant)
	comp := claim.SystemComponents["app"]

	vmap := versions.NewMap()
	vmap.SetComponent(slot.A, &manifest.Component{Name: "app", VersionUpgrade: "0.9.0"}, comp)
	err := update.ValidateVersions(claim, vmap, slot.A)
	c.Assert(err, ErrorMatches, `component "app" is at version "0.9.0", manifest expects "1.0.0"`)
}

func (s *validateSuite) TestSingleAcceptsAssertOrUpgradeVersion(c *C) {
	claim := validateClaim(component.Single)
	comp := claim.SystemComponents["app"]

	vmap := versions.NewMap()
	vmap.SetComponent(slot.A, &manifest.Component{Name: "app", VersionUpgrade: "1.0.0"}, comp)
	c.Check(update.ValidateVersions(claim, vmap, slot.A), IsNil)

	// a shared location may already carry the upgrade version from a
	// run out of the other slot
	vmap = versions.NewMap()
	vmap.SetComponent(slot.A, &manifest.Component{Name: "app", VersionUpgrade: "1.1.0"}, comp)
	c.Check(update.ValidateVersions(claim, vmap, slot.A), IsNil)

	vmap = versions.NewMap()
	vmap.SetComponent(slot.A, &manifest.Component{Name: "app", VersionUpgrade: "0.9.0"}, comp)
	err := update.ValidateVersions(claim, vmap, slot.A)
	c.Assert(err, ErrorMatches, `component "app" is at version "0.9.0", manifest expects "1.0.0"`)
}
