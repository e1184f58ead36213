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

// Package trust holds the pinned public keys that update manifests are
// verified against. The key material is embedded in the binary and
// checked against hard-coded digests on first use; a mismatch means the
// binary itself was tampered with and is fatal.
package trust

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/embedfleet/updated/logger"
)

// PinnedKeys are the process-wide verifying keys, one per signing
// environment. They are initialized exactly once and never reloaded.
type PinnedKeys struct {
	Production ed25519.PublicKey
	Staging    ed25519.PublicKey
}

var (
	pinnedMu sync.Mutex
	pinned   *PinnedKeys
)

// Keys returns the pinned verifying keys, initializing them on first
// use. It panics if the embedded key material fails its digest check or
// does not decode as public Ed25519 key material.
func Keys() *PinnedKeys {
	pinnedMu.Lock()
	defer pinnedMu.Unlock()
	if pinned != nil {
		return pinned
	}
	production, err := decodePinnedKey(productionKeyDoc, productionKeyDigest)
	if err != nil {
		logger.Panicf("internal error: cannot initialize production verifying key: %v", err)
	}
	staging, err := decodePinnedKey(stagingKeyDoc, stagingKeyDigest)
	if err != nil {
		logger.Panicf("internal error: cannot initialize staging verifying key: %v", err)
	}
	pinned = &PinnedKeys{Production: production, Staging: staging}
	return pinned
}

// keyDocument is the wire form of an embedded key-exchange document.
type keyDocument struct {
	Keys []struct {
		Crv string `json:"crv"`
		Kty string `json:"kty"`
		X   string `json:"x"`
		// D is only present for private keys and must never appear
		// in embedded material.
		D string `json:"d"`
	} `json:"keys"`
}

// decodePinnedKey verifies the document's digest and decodes it into a
// public Ed25519 key.
func decodePinnedKey(doc, expectedDigest string) (ed25519.PublicKey, error) {
	digest := sha256.Sum256([]byte(doc))
	expected, err := hex.DecodeString(expectedDigest)
	if err != nil || len(expected) != sha256.Size {
		return nil, fmt.Errorf("expected digest %q is not a sha256 hex digest", expectedDigest)
	}
	if subtle.ConstantTimeCompare(digest[:], expected) != 1 {
		return nil, fmt.Errorf("embedded key material does not match expected digest %s", expectedDigest)
	}

	var parsed keyDocument
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, fmt.Errorf("cannot parse embedded key material: %v", err)
	}
	if len(parsed.Keys) != 1 {
		return nil, fmt.Errorf("embedded key material carries %d keys, expected exactly 1", len(parsed.Keys))
	}
	key := parsed.Keys[0]
	if key.Kty != "OKP" || key.Crv != "Ed25519" {
		return nil, fmt.Errorf("embedded key has type %q on curve %q, expected an Ed25519 OKP key", key.Kty, key.Crv)
	}
	if key.D != "" {
		return nil, fmt.Errorf("embedded key material contains a private key")
	}
	raw, err := base64.RawURLEncoding.DecodeString(key.X)
	if err != nil {
		return nil, fmt.Errorf("cannot decode embedded public key point: %v", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("embedded public key has %d bytes, expected %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// MockKeys replaces the pinned keys for testing purposes.
func MockKeys(keys *PinnedKeys) (restore func()) {
	pinnedMu.Lock()
	defer pinnedMu.Unlock()
	old := pinned
	pinned = keys
	return func() {
		pinnedMu.Lock()
		defer pinnedMu.Unlock()
		pinned = old
	}
}
