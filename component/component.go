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

// Package component describes what an update component is and where it
// lives on the device: a microcontroller firmware behind a CAN bus
// address, a GPT partition, a raw byte range on a block device, or a
// whole-device firmware capsule.
package component

import (
	"encoding/json"
	"fmt"
)

// Redundancy says whether a component occupies a single location shared
// by both slots, or has one independently addressed copy per slot.
type Redundancy string

const (
	Single    Redundancy = "single"
	Redundant Redundancy = "redundant"
)

func (r *Redundancy) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch Redundancy(v) {
	case Single, Redundant:
		*r = Redundancy(v)
		return nil
	}
	return fmt.Errorf("cannot parse %q as a redundancy, expected \"single\" or \"redundant\"", v)
}

// Kind discriminates the closed set of component variants.
type Kind string

const (
	KindCAN     Kind = "can"
	KindGPT     Kind = "gpt"
	KindRaw     Kind = "raw"
	KindCapsule Kind = "capsule"
)

// CAN is a firmware update to be streamed to a microcontroller over a
// CAN bus. Only the addressing lives here, the wire transport is an
// external collaborator.
type CAN struct {
	Address    uint32     `json:"address"`
	Bus        string     `json:"bus"`
	Redundancy Redundancy `json:"redundancy"`
}

// GPT is a block-level partition identified by a GPT label on one of
// the well-known block devices.
type GPT struct {
	Device     Device     `json:"device"`
	Label      string     `json:"label"`
	Redundancy Redundancy `json:"redundancy"`
}

// Raw is a raw byte range at a fixed offset on a block device.
type Raw struct {
	Device     Device     `json:"device"`
	Offset     uint64     `json:"offset"`
	Size       uint64     `json:"size"`
	Redundancy Redundancy `json:"redundancy"`
}

// Capsule is a whole-device firmware capsule applied by the boot
// firmware itself. It has no addressing and is never redundant.
type Capsule struct{}

// Component is a tagged union over the four variants. The zero value is
// invalid; components are built by New* constructors or unmarshalled
// from their wire representation.
type Component struct {
	kind    Kind
	can     *CAN
	gpt     *GPT
	raw     *Raw
	capsule *Capsule
}

func NewCAN(c CAN) Component     { return Component{kind: KindCAN, can: &c} }
func NewGPT(g GPT) Component     { return Component{kind: KindGPT, gpt: &g} }
func NewRaw(r Raw) Component     { return Component{kind: KindRaw, raw: &r} }
func NewCapsule() Component      { return Component{kind: KindCapsule, capsule: &Capsule{}} }

// Kind returns the variant discriminator.
func (c *Component) Kind() Kind { return c.kind }

// CAN returns the CAN variant data, or nil for other kinds.
func (c *Component) CAN() *CAN { return c.can }

// GPT returns the GPT variant data, or nil for other kinds.
func (c *Component) GPT() *GPT { return c.gpt }

// Raw returns the raw-region variant data, or nil for other kinds.
func (c *Component) Raw() *Raw { return c.raw }

// Redundancy is uniform over the variants; capsules are always single.
func (c *Component) Redundancy() Redundancy {
	switch c.kind {
	case KindCAN:
		return c.can.Redundancy
	case KindGPT:
		return c.gpt.Redundancy
	case KindRaw:
		return c.raw.Redundancy
	case KindCapsule:
		return Single
	}
	panic(fmt.Sprintf("internal error: component of unknown kind %q", c.kind))
}

func (c *Component) IsRedundant() bool {
	return c.Redundancy() == Redundant
}

// wire representation: {"type": <kind>, "value": <variant>}
type wireComponent struct {
	Type  Kind            `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (c *Component) UnmarshalJSON(data []byte) error {
	var wire wireComponent
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Type {
	case KindCAN:
		var v CAN
		if err := json.Unmarshal(wire.Value, &v); err != nil {
			return fmt.Errorf("cannot parse can component: %v", err)
		}
		*c = NewCAN(v)
	case KindGPT:
		var v GPT
		if err := json.Unmarshal(wire.Value, &v); err != nil {
			return fmt.Errorf("cannot parse gpt component: %v", err)
		}
		*c = NewGPT(v)
	case KindRaw:
		var v Raw
		if err := json.Unmarshal(wire.Value, &v); err != nil {
			return fmt.Errorf("cannot parse raw component: %v", err)
		}
		*c = NewRaw(v)
	case KindCapsule:
		*c = NewCapsule()
	default:
		return fmt.Errorf("cannot parse component of unknown type %q", wire.Type)
	}
	return nil
}

func (c Component) MarshalJSON() ([]byte, error) {
	var value interface{}
	switch c.kind {
	case KindCAN:
		value = c.can
	case KindGPT:
		value = c.gpt
	case KindRaw:
		value = c.raw
	case KindCapsule:
		value = c.capsule
	default:
		return nil, fmt.Errorf("cannot marshal component of unknown kind %q", c.kind)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireComponent{Type: c.kind, Value: raw})
}

// Components maps component names to their addressing description. It
// represents the full set of components known to the system, not just
// the ones an update touches.
type Components map[string]Component
