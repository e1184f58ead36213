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

	"github.com/embedfleet/updated/logger"
	"github.com/embedfleet/updated/manifest"
	"github.com/embedfleet/updated/slot"
	"github.com/embedfleet/updated/versions"
)

// VersionAssertError is returned when a component's installed version
// does not match what the manifest expects to upgrade from.
type VersionAssertError struct {
	Name     string
	Expected string
	Found    string
}

func (e *VersionAssertError) Error() string {
	return fmt.Sprintf("component %q is at version %q, manifest expects %q", e.Name, e.Found, e.Expected)
}

// ValidateVersions checks each manifest component's version assertion
// against the version map. A component absent from the map is treated
// as new and passes. A single component also passes when it already
// carries the upgrade version, since a single location is shared by
// both slots and may have been written by a previous run from the
// other slot.
func ValidateVersions(claim *manifest.Claim, vmap *versions.Map, active slot.Slot) error {
	for i := range claim.Manifest.Components {
		mc := &claim.Manifest.Components[i]
		comp, ok := claim.SystemComponents[mc.Name]
		if !ok {
			return fmt.Errorf("internal error: component %q has no system description", mc.Name)
		}
		info := vmap.Component(mc.Name)
		if info == nil {
			logger.Noticef("component %q not in version map, treating as new", mc.Name)
			continue
		}

		if comp.IsRedundant() {
			found, ok := info.SlotVersion.Version(active)
			if !ok || found != mc.VersionAssert {
				return &VersionAssertError{Name: mc.Name, Expected: mc.VersionAssert, Found: found}
			}
			continue
		}

		found, _ := info.SlotVersion.Version(active)
		if found != mc.VersionAssert && found != mc.VersionUpgrade {
			return &VersionAssertError{Name: mc.Name, Expected: mc.VersionAssert, Found: found}
		}
	}
	return nil
}
