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

// Package versions tracks which version of every component is present
// in which slot. The map is persisted to a single JSON file which is
// rewritten atomically after every mutation of consequence, so that a
// crash mid-update leaves an accurate record of what was already
// written.
package versions

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/embedfleet/updated/component"
	"github.com/embedfleet/updated/dirs"
	"github.com/embedfleet/updated/manifest"
	"github.com/embedfleet/updated/osutil"
	"github.com/embedfleet/updated/slot"
)

// SlotVersion is the per-slot version record of one component. A
// single component has one version; a redundant one has an independent
// version per slot, either of which may be unknown.
type SlotVersion struct {
	single    *singleVersion
	redundant *redundantVersion
}

type singleVersion struct {
	Version string `json:"version"`
}

type redundantVersion struct {
	VersionA *string `json:"version_a"`
	VersionB *string `json:"version_b"`
}

// NewSingle returns a single-slot version record.
func NewSingle(version string) SlotVersion {
	return SlotVersion{single: &singleVersion{Version: version}}
}

// NewRedundant returns a redundant version record with the given
// version in the given slot and the other slot unknown.
func NewRedundant(version string, sl slot.Slot) SlotVersion {
	v := version
	rv := &redundantVersion{}
	if sl == slot.A {
		rv.VersionA = &v
	} else {
		rv.VersionB = &v
	}
	return SlotVersion{redundant: rv}
}

// IsRedundant reports whether the record tracks per-slot versions.
func (sv *SlotVersion) IsRedundant() bool {
	return sv.redundant != nil
}

// Version returns the version recorded for the given slot. For a
// single component the slot is ignored. The second return is false if
// no version is recorded.
func (sv *SlotVersion) Version(sl slot.Slot) (string, bool) {
	switch {
	case sv.single != nil:
		return sv.single.Version, true
	case sv.redundant != nil:
		var v *string
		if sl == slot.A {
			v = sv.redundant.VersionA
		} else {
			v = sv.redundant.VersionB
		}
		if v == nil {
			return "", false
		}
		return *v, true
	}
	return "", false
}

// mirror copies the version of the slot opposite to target into
// target. Reports false for single records, which have nothing to
// mirror.
func (sv *SlotVersion) mirror(target slot.Slot) bool {
	if sv.redundant == nil {
		return false
	}
	if target == slot.A {
		sv.redundant.VersionA = cloneStringPtr(sv.redundant.VersionB)
	} else {
		sv.redundant.VersionB = cloneStringPtr(sv.redundant.VersionA)
	}
	return true
}

// setSlot records version for the target slot, leaving the other
// slot's record alone.
func (sv *SlotVersion) setSlot(version string, target slot.Slot) {
	if sv.redundant == nil {
		*sv = NewRedundant(version, target)
		return
	}
	v := version
	if target == slot.A {
		sv.redundant.VersionA = &v
	} else {
		sv.redundant.VersionB = &v
	}
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

type slotVersionWire struct {
	Single    *singleVersion    `json:"single,omitempty"`
	Redundant *redundantVersion `json:"redundant,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (sv SlotVersion) MarshalJSON() ([]byte, error) {
	return json.Marshal(slotVersionWire{Single: sv.single, Redundant: sv.redundant})
}

// UnmarshalJSON implements json.Unmarshaler.
func (sv *SlotVersion) UnmarshalJSON(data []byte) error {
	var wire slotVersionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if (wire.Single == nil) == (wire.Redundant == nil) {
		return fmt.Errorf("cannot parse slot version: exactly one of \"single\" or \"redundant\" must be set")
	}
	sv.single = wire.Single
	sv.redundant = wire.Redundant
	return nil
}

// ComponentInfo is the version record of a named component.
type ComponentInfo struct {
	Name        string      `json:"name"`
	SlotVersion SlotVersion `json:"slot_version"`
}

type releases struct {
	SlotA    *string `json:"slot_a"`
	SlotB    *string `json:"slot_b"`
	Recovery *string `json:"recovery"`
}

// Map records the release version per slot and the per-component
// version state of the whole system.
type Map struct {
	Releases   releases                  `json:"releases"`
	Components map[string]*ComponentInfo `json:"components"`
}

// NewMap returns an empty version map.
func NewMap() *Map {
	return &Map{Components: make(map[string]*ComponentInfo)}
}

// Load reads the version map from its well-known location. A missing
// file yields an empty map, which is what a factory-fresh device has.
func Load() (*Map, error) {
	return LoadFrom(dirs.VersionMapFile)
}

// LoadFrom reads a version map from the given path.
func LoadFrom(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewMap(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read version map: %v", err)
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("cannot parse version map %q: %v", path, err)
	}
	if m.Components == nil {
		m.Components = make(map[string]*ComponentInfo)
	}
	return &m, nil
}

// Persist atomically rewrites the version map at its well-known
// location.
func (m *Map) Persist() error {
	return m.PersistTo(dirs.VersionMapFile)
}

// PersistTo atomically rewrites the version map at the given path.
func (m *Map) PersistTo(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot serialize version map: %v", err)
	}
	data = append(data, '\n')
	if err := osutil.AtomicWriteFile(path, data, 0644, 0); err != nil {
		return fmt.Errorf("cannot persist version map: %v", err)
	}
	return nil
}

// SlotRelease returns the release version recorded for a slot.
func (m *Map) SlotRelease(sl slot.Slot) (string, bool) {
	var v *string
	if sl == slot.A {
		v = m.Releases.SlotA
	} else {
		v = m.Releases.SlotB
	}
	if v == nil {
		return "", false
	}
	return *v, true
}

// SetSlotRelease records the release version for a slot.
func (m *Map) SetSlotRelease(version string, sl slot.Slot) {
	v := version
	if sl == slot.A {
		m.Releases.SlotA = &v
	} else {
		m.Releases.SlotB = &v
	}
}

// RecoveryRelease returns the recovery release version, if recorded.
func (m *Map) RecoveryRelease() (string, bool) {
	if m.Releases.Recovery == nil {
		return "", false
	}
	return *m.Releases.Recovery, true
}

// SetRecoveryRelease records the recovery release version.
func (m *Map) SetRecoveryRelease(version string) {
	v := version
	m.Releases.Recovery = &v
}

// Component returns the version record for the named component, or
// nil.
func (m *Map) Component(name string) *ComponentInfo {
	return m.Components[name]
}

// ComponentVersion returns the version of the named component in the
// given slot.
func (m *Map) ComponentVersion(name string, sl slot.Slot) (string, bool) {
	info := m.Components[name]
	if info == nil {
		return "", false
	}
	return info.SlotVersion.Version(sl)
}

// SetComponent records that the component described by the manifest
// entry now has its upgrade version in the target slot. Redundancy is
// taken from the system component description, not from any previous
// record.
func (m *Map) SetComponent(target slot.Slot, mc *manifest.Component, sysComp component.Component) {
	info := m.Components[mc.Name]
	if info == nil {
		var sv SlotVersion
		if sysComp.IsRedundant() {
			sv = NewRedundant(mc.VersionUpgrade, target)
		} else {
			sv = NewSingle(mc.VersionUpgrade)
		}
		m.Components[mc.Name] = &ComponentInfo{Name: mc.Name, SlotVersion: sv}
		return
	}
	if sysComp.IsRedundant() {
		info.SlotVersion.setSlot(mc.VersionUpgrade, target)
	} else {
		info.SlotVersion = NewSingle(mc.VersionUpgrade)
	}
}

// MirrorRedundantComponentVersion copies the version recorded for the
// slot opposite to target into target's record for the named
// component. It reports false if the component is unknown or not
// redundant; the caller decides whether that is a problem.
func (m *Map) MirrorRedundantComponentVersion(name string, target slot.Slot) bool {
	info := m.Components[name]
	if info == nil {
		return false
	}
	return info.SlotVersion.mirror(target)
}
