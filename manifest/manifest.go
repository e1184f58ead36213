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

// Package manifest parses and authenticates update claims. A claim is
// a signed JSON document naming a target version, the signed manifest
// of components being updated, the download sources for those
// components, and a description of every component the system knows
// about. Claims are only ever obtained through VerifyClaim so that no
// unverified claim data can reach the update executor.
package manifest

import (
	"encoding/json"
	"fmt"
	"sort"
)

// UpdateKind distinguishes a normal A/B update from a full update that
// also reflashes the recovery slot.
type UpdateKind string

const (
	UpdateKindNormal UpdateKind = "normal"
	UpdateKindFull   UpdateKind = "full"
)

func (k UpdateKind) IsFull() bool   { return k == UpdateKindFull }
func (k UpdateKind) IsNormal() bool { return k == UpdateKindNormal }

// UnmarshalJSON implements json.Unmarshaler.
func (k *UpdateKind) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch kind := UpdateKind(v); kind {
	case UpdateKindNormal, UpdateKindFull:
		*k = kind
		return nil
	}
	return fmt.Errorf("cannot parse %q as an update kind, expected \"normal\" or \"full\"", v)
}

// InstallationPhase says whether a component is written during a
// normal update run or only while reflashing recovery.
type InstallationPhase string

const (
	PhaseNormal   InstallationPhase = "normal"
	PhaseRecovery InstallationPhase = "recovery"
)

// UnmarshalJSON implements json.Unmarshaler.
func (p *InstallationPhase) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch phase := InstallationPhase(v); phase {
	case PhaseNormal, PhaseRecovery:
		*p = phase
		return nil
	}
	return fmt.Errorf("cannot parse %q as an installation phase, expected \"normal\" or \"recovery\"", v)
}

// Component is one entry of the signed manifest: a component being
// updated, the version it is expected to currently have, the version it
// is upgraded to, and the size and hash of its final payload.
type Component struct {
	Name string `json:"name"`
	// VersionAssert is the version the component must have before
	// this update applies.
	VersionAssert string `json:"version-assert"`
	// VersionUpgrade is the version the component has after the
	// update.
	VersionUpgrade string            `json:"version"`
	Size           uint64            `json:"size"`
	Hash           string            `json:"hash"`
	Phase          InstallationPhase `json:"installation_phase"`
}

// Manifest is the signed inner document of a claim: the update kind
// and the list of components this update changes. Components the
// manifest does not list are not written, but redundant ones are still
// mirrored between slots by the executor.
type Manifest struct {
	Magic      string      `json:"magic"`
	Kind       UpdateKind  `json:"type"`
	Components []Component `json:"components"`
}

// DuplicateComponentsError reports manifest entries sharing a name.
type DuplicateComponentsError struct {
	Names []string
}

func (e *DuplicateComponentsError) Error() string {
	return fmt.Sprintf("manifest contains components with duplicate names: %v", e.Names)
}

// UnmarshalJSON implements json.Unmarshaler, rejecting manifests with
// duplicate component names.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var unchecked struct {
		Magic      string      `json:"magic"`
		Kind       UpdateKind  `json:"type"`
		Components []Component `json:"components"`
	}
	if err := json.Unmarshal(data, &unchecked); err != nil {
		return err
	}
	if unchecked.Magic == "" {
		return fmt.Errorf("manifest field \"magic\" is not set")
	}
	if dupes := duplicateComponentNames(unchecked.Components); len(dupes) > 0 {
		return &DuplicateComponentsError{Names: dupes}
	}
	m.Magic = unchecked.Magic
	m.Kind = unchecked.Kind
	m.Components = unchecked.Components
	return nil
}

// Component returns the manifest entry with the given name, or nil.
func (m *Manifest) Component(name string) *Component {
	for i := range m.Components {
		if m.Components[i].Name == name {
			return &m.Components[i]
		}
	}
	return nil
}

// HasComponent reports whether the manifest updates the named
// component.
func (m *Manifest) HasComponent(name string) bool {
	return m.Component(name) != nil
}

func duplicateComponentNames(components []Component) []string {
	seen := make(map[string]int, len(components))
	for _, comp := range components {
		seen[comp.Name]++
	}
	var dupes []string
	for name, n := range seen {
		if n > 1 {
			dupes = append(dupes, name)
		}
	}
	sort.Strings(dupes)
	return dupes
}
