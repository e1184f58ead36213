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

// Package slot defines the two-valued A/B boot slot used throughout the
// update engine to address redundant copies of system components.
package slot

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Slot is one of the two redundant system images used for fail-safe
// updates.
type Slot int

const (
	A Slot = iota
	B
)

// Opposite returns the slot opposite to the receiver.
func (s Slot) Opposite() Slot {
	switch s {
	case A:
		return B
	case B:
		return A
	}
	panic(fmt.Sprintf("internal error: invalid slot %d", int(s)))
}

func (s Slot) String() string {
	switch s {
	case A:
		return "a"
	case B:
		return "b"
	}
	return fmt.Sprintf("invalid-slot-%d", int(s))
}

// Label returns the upper-case slot letter as used in redundant GPT
// partition names, e.g. the "A" in "A_rootfs".
func (s Slot) Label() string {
	return strings.ToUpper(s.String())
}

// Parse parses "a" or "b" into the corresponding slot.
func Parse(s string) (Slot, error) {
	switch s {
	case "a":
		return A, nil
	case "b":
		return B, nil
	}
	return 0, fmt.Errorf("cannot parse %q as a slot, expected \"a\" or \"b\"", s)
}

func (s Slot) MarshalJSON() ([]byte, error) {
	switch s {
	case A, B:
		return json.Marshal(s.String())
	}
	return nil, fmt.Errorf("cannot marshal invalid slot %d", int(s))
}

func (s *Slot) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := Parse(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
