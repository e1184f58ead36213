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

package manifest

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/embedfleet/updated/component"
)

// ErrSignatureMissing is returned for claims whose manifest signature
// is absent or carries a known placeholder value.
var ErrSignatureMissing = errors.New("missing manifest signature")

// SignatureError means the manifest signature did not verify against
// the supplied key. The claim contents must not be used.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("cannot verify manifest signature: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// ClaimFieldsError reports required claim fields that were not set.
type ClaimFieldsError struct {
	Fields []string
}

func (e *ClaimFieldsError) Error() string {
	return fmt.Sprintf("required claim fields not set: %v", e.Fields)
}

// CrossValidationError reports manifest components that are missing a
// source or are unknown to the system component map.
type CrossValidationError struct {
	WithoutSources  []string
	NotInComponents []string
}

func (e *CrossValidationError) Error() string {
	if len(e.WithoutSources) > 0 {
		return fmt.Sprintf("manifest contains components without sources: %v", e.WithoutSources)
	}
	return fmt.Sprintf("manifest contains components not listed in system components: %v", e.NotInComponents)
}

// Claim is a verified update document. It is only ever constructed by
// VerifyClaim and is treated as immutable for the duration of one
// update attempt.
type Claim struct {
	Version          string
	Manifest         *Manifest
	Signature        string
	Sources          map[string]Source
	SystemComponents component.Components
}

// Source returns the source descriptor for a manifest component. The
// cross-validation done by VerifyClaim guarantees it exists.
func (c *Claim) Source(name string) *Source {
	src, ok := c.Sources[name]
	if !ok {
		return nil
	}
	return &src
}

// FullUpdateSize returns the total bytes the update will move: all
// source payloads plus all final component payloads.
func (c *Claim) FullUpdateSize() uint64 {
	var total uint64
	for _, src := range c.Sources {
		total += src.Size
	}
	for _, comp := range c.Manifest.Components {
		total += comp.Size
	}
	return total
}

// placeholder signature values seen in the wild on unsigned test claims
func isPlaceholderSignature(sig string) bool {
	return sig == "" || sig == "mt"
}

// VerifyClaim parses the claim document and authenticates its manifest
// against the given verifying key. The signature is computed over the
// manifest's raw JSON bytes exactly as they appear in the document.
// On any error no claim data is returned.
func VerifyClaim(data []byte, key ed25519.PublicKey) (*Claim, error) {
	var unchecked struct {
		Version          string               `json:"version"`
		Manifest         json.RawMessage      `json:"manifest"`
		Signature        *string              `json:"manifest-sig"`
		Sources          map[string]Source    `json:"sources"`
		SystemComponents component.Components `json:"system_components"`
	}
	if err := json.Unmarshal(data, &unchecked); err != nil {
		return nil, fmt.Errorf("cannot parse claim: %v", err)
	}

	var missing []string
	if unchecked.Version == "" {
		missing = append(missing, "version")
	}
	if len(unchecked.Manifest) == 0 {
		missing = append(missing, "manifest")
	}
	if unchecked.SystemComponents == nil {
		missing = append(missing, "system_components")
	}
	if len(missing) > 0 {
		return nil, &ClaimFieldsError{Fields: missing}
	}

	var m Manifest
	if err := json.Unmarshal(unchecked.Manifest, &m); err != nil {
		return nil, fmt.Errorf("cannot parse claim manifest: %v", err)
	}

	if err := crossValidate(&m, unchecked.Sources, unchecked.SystemComponents); err != nil {
		return nil, err
	}

	if unchecked.Signature == nil || isPlaceholderSignature(*unchecked.Signature) {
		return nil, ErrSignatureMissing
	}
	sig, err := base64.StdEncoding.DecodeString(*unchecked.Signature)
	if err != nil {
		return nil, &SignatureError{Err: fmt.Errorf("cannot decode signature: %v", err)}
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, &SignatureError{Err: fmt.Errorf("signature has %d bytes, expected %d", len(sig), ed25519.SignatureSize)}
	}
	if !ed25519.Verify(key, unchecked.Manifest, sig) {
		return nil, &SignatureError{Err: errors.New("signature does not match manifest")}
	}

	return &Claim{
		Version:          unchecked.Version,
		Manifest:         &m,
		Signature:        *unchecked.Signature,
		Sources:          unchecked.Sources,
		SystemComponents: unchecked.SystemComponents,
	}, nil
}

func crossValidate(m *Manifest, sources map[string]Source, systemComponents component.Components) error {
	var withoutSources, notInSystem []string
	for _, comp := range m.Components {
		if _, ok := sources[comp.Name]; !ok {
			withoutSources = append(withoutSources, comp.Name)
		}
		if _, ok := systemComponents[comp.Name]; !ok {
			notInSystem = append(notInSystem, comp.Name)
		}
	}
	sort.Strings(withoutSources)
	sort.Strings(notInSystem)
	if len(withoutSources) > 0 || len(notInSystem) > 0 {
		return &CrossValidationError{
			WithoutSources:  withoutSources,
			NotInComponents: notInSystem,
		}
	}
	return nil
}
